package domain

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() RoomLimits {
	return RoomLimits{MaxMembers: 3, MaxSourceBytes: 16, MaxFileBytes: 12, ChatHistory: 5}
}

func member(id string) Participant {
	return Participant{ID: id, Name: "user-" + id, Color: "#fff"}
}

func TestJoinRejectsBeyondCapWithoutSideEffects(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindCode}, testLimits())

	for _, id := range []string{"a", "b", "c"} {
		_, err := room.Join(member(id), nil)
		require.NoError(t, err)
	}

	called := false
	_, err := room.Join(member("d"), func(RoomSnapshot, []string) { called = true })
	require.ErrorIs(t, err, ErrRoomFull)
	assert.False(t, called)
	assert.Equal(t, 3, room.Len())
	assert.False(t, room.HasMember("d"))

	remaining, removed := room.Leave("a", nil)
	require.True(t, removed)
	assert.Equal(t, 2, remaining)

	_, err = room.Join(member("d"), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, room.Len())
}

func TestJoinTwiceRefreshesProfile(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindCode}, testLimits())

	rejoined, err := room.Join(member("a"), nil)
	require.NoError(t, err)
	assert.False(t, rejoined)

	var others []string
	var snap RoomSnapshot
	rejoined, err = room.Join(Participant{ID: "a", Name: "renamed", Color: "#000"}, func(s RoomSnapshot, ids []string) {
		snap, others = s, ids
	})
	require.NoError(t, err)
	assert.True(t, rejoined)
	assert.Empty(t, others)
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "renamed", snap.Members[0].Name)
}

func TestJoinDeliverSeesOthers(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindCall}, testLimits())
	_, err := room.Join(member("a"), nil)
	require.NoError(t, err)

	var others []string
	var snap RoomSnapshot
	_, err = room.Join(member("b"), func(s RoomSnapshot, ids []string) {
		snap, others = s, ids
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, others)
	require.Len(t, snap.Members, 2)
	assert.Equal(t, "a", snap.Members[0].ID)
	assert.Equal(t, "b", snap.Members[1].ID)
	require.NotNil(t, snap.Call)
	assert.Equal(t, MediaVideo, snap.Call.MediaKind)
}

func TestChatHistoryIsFIFOBounded(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindCode}, testLimits())
	_, err := room.Join(member("a"), nil)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		msg := NewChatMessage(member("a"), fmt.Sprintf("m%d", i))
		require.NoError(t, room.AppendChat(msg, nil))
		assert.LessOrEqual(t, len(room.Snapshot().Chat), 5)
	}

	chat := room.Snapshot().Chat
	require.Len(t, chat, 5)
	for i, msg := range chat {
		assert.Equal(t, fmt.Sprintf("m%d", i+7), msg.Text)
	}
}

func TestChatRequiresMembership(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindCode}, testLimits())
	err := room.AppendChat(NewChatMessage(member("x"), "hi"), nil)
	require.ErrorIs(t, err, ErrNotMember)
	assert.Empty(t, room.Snapshot().Chat)
}

func TestSourceTextSizeCap(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindCode}, testLimits())
	_, err := room.Join(member("a"), nil)
	require.NoError(t, err)

	require.NoError(t, room.SetSourceText("a", "short", nil))

	notified := false
	err = room.SetSourceText("a", strings.Repeat("x", 17), func([]string) { notified = true })
	require.ErrorIs(t, err, ErrSourceTooLarge)
	assert.False(t, notified)
	assert.Equal(t, "short", room.Snapshot().Code.SourceText)
}

func TestFileSizeCap(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindFile}, testLimits())
	_, err := room.Join(member("a"), nil)
	require.NoError(t, err)

	require.NoError(t, room.SetFile("a", FileBlob{Name: "a.txt", Size: 4, Data: "YWJjZA=="}, nil))

	err = room.SetFile("a", FileBlob{Name: "big.bin", Size: 13, Data: "x"}, nil)
	require.ErrorIs(t, err, ErrFileTooLarge)

	err = room.SetFile("a", FileBlob{Name: "lying.bin", Size: 1, Data: strings.Repeat("x", int(EncodedLimit(12))+1)}, nil)
	require.ErrorIs(t, err, ErrFileTooLarge)

	snap := room.Snapshot()
	require.NotNil(t, snap.File)
	assert.Equal(t, "a.txt", snap.File.Name)
	assert.False(t, snap.File.UploadedAt.IsZero())

	require.NoError(t, room.ClearFile("a", nil))
	assert.Nil(t, room.Snapshot().File)
}

func TestKindSpecificMutationsRejectOtherKinds(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindFile}, testLimits())
	_, err := room.Join(member("a"), nil)
	require.NoError(t, err)

	require.ErrorIs(t, room.SetSourceText("a", "x", nil), ErrWrongKind)
	require.ErrorIs(t, room.SetLanguage("a", "go", nil), ErrWrongKind)

	code := NewRoom(RoomKey{ID: "r1", Kind: KindCode}, testLimits())
	require.ErrorIs(t, code.SetFile("a", FileBlob{}, nil), ErrWrongKind)
}

func TestNotifierSeesCurrentMembers(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindCode}, testLimits())
	for _, id := range []string{"a", "b"} {
		_, err := room.Join(member(id), nil)
		require.NoError(t, err)
	}

	var ids []string
	require.NoError(t, room.SetLanguage("a", "go", func(m []string) { ids = m }))
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	_, removed := room.Leave("b", func(m []string) { ids = m })
	require.True(t, removed)
	assert.Equal(t, []string{"a"}, ids)
}

func TestCursorIsStoredPerMember(t *testing.T) {
	room := NewRoom(RoomKey{ID: "r1", Kind: KindCode}, testLimits())
	_, err := room.Join(member("a"), nil)
	require.NoError(t, err)

	require.NoError(t, room.UpdateCursor("a", []byte(`{"line":3}`), nil))
	require.NoError(t, room.UpdateSelection("a", []byte(`{"from":1,"to":2}`), nil))
	snap := room.Snapshot()
	assert.JSONEq(t, `{"line":3}`, string(snap.Members[0].Cursor))

	require.NoError(t, room.UpdateSelection("a", nil, nil))
	assert.Nil(t, room.Snapshot().Members[0].Selection)

	require.ErrorIs(t, room.UpdateCursor("zz", []byte(`{}`), nil), ErrNotMember)
}

func TestParseKinds(t *testing.T) {
	kind, err := ParseRoomKind("file")
	require.NoError(t, err)
	assert.Equal(t, KindFile, kind)

	_, err = ParseRoomKind("chat")
	require.Error(t, err)

	media, err := ParseMediaKind("")
	require.NoError(t, err)
	assert.Equal(t, MediaVideo, media)

	_, err = ParseMediaKind("hologram")
	require.Error(t, err)
}
