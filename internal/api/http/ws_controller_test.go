package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/cohort/internal/domain"
	"github.com/immxrtalbeast/cohort/internal/protocol"
	"github.com/immxrtalbeast/cohort/internal/ratelimit"
	"github.com/immxrtalbeast/cohort/internal/repository"
	"github.com/immxrtalbeast/cohort/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, origins ...string) string {
	t.Helper()
	return startServer(t, WSOptions{SendBuffer: 32, MaxFileBytes: 1024, MaxSourceBytes: 1024}, origins...)
}

func startServer(t *testing.T, opts WSOptions, origins ...string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewInMemoryRoomStore(domain.RoomLimits{
		MaxMembers:     10,
		MaxSourceBytes: 1024,
		MaxFileBytes:   1024,
		ChatHistory:    100,
	}, time.Minute)
	relay := service.NewRelay(store, ratelimit.New(nil, time.Second), nil, service.RelayOptions{}, nil)
	policy := NewOriginPolicy(origins)

	ws := NewWSController(relay, policy, opts, nil)
	srv := httptest.NewServer(SetupRouter(ws, NewRoomController(relay), policy))
	t.Cleanup(srv.Close)
	return srv.URL
}

func wsURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
}

func dial(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(baseURL), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msgType, roomID string, payload any) {
	t.Helper()
	msg, err := protocol.New(msgType, roomID, payload)
	require.NoError(t, err)
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(protocol.Message) bool) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("set deadline: %v", err)
		}
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func ofType(msgType string) func(protocol.Message) bool {
	return func(m protocol.Message) bool { return m.Type == msgType }
}

func joinCode(t *testing.T, conn *websocket.Conn, roomID, name string) protocol.RoomData {
	t.Helper()
	writeMsg(t, conn, protocol.TypeJoinRoom, roomID, protocol.JoinPayload{Name: name})
	msg := readUntil(t, conn, ofType(protocol.TypeRoomData))
	var data protocol.RoomData
	require.NoError(t, json.Unmarshal(msg.Payload, &data))
	return data
}

func TestChatOverWebsocket(t *testing.T) {
	baseURL := startTestServer(t)

	alice := dial(t, baseURL)
	bob := dial(t, baseURL)

	aliceData := joinCode(t, alice, "r1", "alice")
	bobData := joinCode(t, bob, "r1", "bob")
	assert.NotEqual(t, aliceData.Self.ID, bobData.Self.ID)
	assert.Len(t, bobData.Members, 2)

	readUntil(t, alice, func(m protocol.Message) bool {
		if m.Type != protocol.TypeUserJoined {
			return false
		}
		var ev protocol.MemberEvent
		return json.Unmarshal(m.Payload, &ev) == nil && ev.Member.Name == "bob"
	})

	writeMsg(t, bob, protocol.TypeChatMessage, "r1", protocol.ChatPayload{Text: "hi alice"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readUntil(t, conn, ofType(protocol.TypeNewMessage))
		var chat protocol.ChatView
		require.NoError(t, json.Unmarshal(msg.Payload, &chat))
		assert.Equal(t, "hi alice", chat.Text)
		assert.Equal(t, bobData.Self.ID, chat.SenderID)
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	baseURL := startTestServer(t)
	conn := dial(t, baseURL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"what-is-this"}`)))
	writeMsg(t, conn, protocol.TypePing, "", nil)

	readUntil(t, conn, ofType(protocol.TypePong))
}

func TestOversizedUploadGetsRoomError(t *testing.T) {
	baseURL := startTestServer(t)
	a := dial(t, baseURL)
	b := dial(t, baseURL)

	writeMsg(t, a, protocol.TypeJoinFileRoom, "f1", protocol.JoinPayload{Name: "a"})
	readUntil(t, a, ofType(protocol.TypeFileRoomData))
	writeMsg(t, b, protocol.TypeJoinFileRoom, "f1", protocol.JoinPayload{Name: "b"})
	readUntil(t, b, ofType(protocol.TypeFileRoomData))

	writeMsg(t, a, protocol.TypeFileUpload, "f1", protocol.FileUploadPayload{File: protocol.FileView{
		Name: "big.bin",
		Size: 100 * 1024,
		Data: strings.Repeat("A", 100*1024),
	}})

	msg := readUntil(t, a, ofType(protocol.TypeRoomError))
	var roomErr protocol.RoomError
	require.NoError(t, json.Unmarshal(msg.Payload, &roomErr))
	assert.Equal(t, protocol.ErrCodeFileTooLarge, roomErr.Code)

	writeMsg(t, a, protocol.TypePing, "", nil)
	readUntil(t, a, ofType(protocol.TypePong))

	writeMsg(t, b, protocol.TypePing, "", nil)
	readUntil(t, b, func(m protocol.Message) bool {
		require.NotEqual(t, protocol.TypeUserLeftFile, m.Type, "uploader must stay in the room")
		require.NotEqual(t, protocol.TypeFileUpdate, m.Type)
		return m.Type == protocol.TypePong
	})
}

func TestFrameAboveCeilingClosesConnection(t *testing.T) {
	baseURL := startServer(t, WSOptions{SendBuffer: 32, MaxFileBytes: 1024, MaxSourceBytes: 1024, MaxFrameBytes: 4096})
	conn := dial(t, baseURL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","payload":"`+strings.Repeat("x", 8192)+`"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		assert.Equal(t, websocket.CloseMessageTooBig, closeErr.Code)
	}
}

func TestFrameLimitDerivedFromCaps(t *testing.T) {
	limit := frameLimit(4*1024*1024, 512000)
	assert.Greater(t, limit, domain.EncodedLimit(4*1024*1024)*2, "a normal over-cap upload must reach the relay")
	assert.Greater(t, frameLimit(0, 512000), int64(512000*2))
}

func TestDisconnectBroadcastsUserLeft(t *testing.T) {
	baseURL := startTestServer(t)
	alice := dial(t, baseURL)
	bob := dial(t, baseURL)

	joinCode(t, alice, "r1", "alice")
	bobData := joinCode(t, bob, "r1", "bob")
	readUntil(t, alice, ofType(protocol.TypeUserJoined))

	require.NoError(t, bob.Close())

	msg := readUntil(t, alice, ofType(protocol.TypeUserLeft))
	var ev protocol.MemberEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, bobData.Self.ID, ev.Member.ID)
	assert.Equal(t, 1, ev.MemberCount)
}

func TestSignalRelayedBetweenCallMembers(t *testing.T) {
	baseURL := startTestServer(t)
	x := dial(t, baseURL)
	y := dial(t, baseURL)

	writeMsg(t, x, protocol.TypeJoinCallRoom, "r1", protocol.JoinPayload{Name: "x"})
	readUntil(t, x, ofType(protocol.TypeCallRoomData))
	writeMsg(t, y, protocol.TypeJoinCallRoom, "r1", protocol.JoinPayload{Name: "y"})
	dataMsg := readUntil(t, y, ofType(protocol.TypeCallRoomData))
	var data protocol.CallRoomData
	require.NoError(t, json.Unmarshal(dataMsg.Payload, &data))

	joined := readUntil(t, x, ofType(protocol.TypeUserJoinedCall))
	var ev protocol.MemberEvent
	require.NoError(t, json.Unmarshal(joined.Payload, &ev))
	assert.Equal(t, data.Self.ID, ev.Member.ID)

	require.NoError(t, x.WriteJSON(protocol.Message{
		Type:     protocol.TypeWebRTCCandidate,
		RoomID:   "r1",
		TargetID: data.Self.ID,
		Payload:  json.RawMessage(`{"candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}}`),
	}))

	got := readUntil(t, y, ofType(protocol.TypeWebRTCCandidate))
	assert.NotEmpty(t, got.FromID)
	assert.Equal(t, data.Self.ID, got.TargetID)
}

func TestRoomInspectionEndpoints(t *testing.T) {
	baseURL := startTestServer(t)
	conn := dial(t, baseURL)
	joinCode(t, conn, "r1", "alice")

	resp, err := http.Get(baseURL + "/api/rooms/code/r1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got struct {
		Room struct {
			ID          string `json:"id"`
			Kind        string `json:"kind"`
			MemberCount int    `json:"member_count"`
		} `json:"room"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "r1", got.Room.ID)
	assert.Equal(t, "code", got.Room.Kind)
	assert.Equal(t, 1, got.Room.MemberCount)

	resp, err = http.Get(baseURL + "/api/rooms/file/r1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(baseURL + "/api/rooms/chat/r1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(baseURL + "/healthz")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","stats":{"rooms":1,"sessions":1}}`, string(body))
}

func TestOriginAllowList(t *testing.T) {
	baseURL := startTestServer(t, "http://allowed.example")

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(baseURL), header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	header.Set("Origin", "http://allowed.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(baseURL), header)
	require.NoError(t, err)
	conn.Close()
}

func TestOriginPolicy(t *testing.T) {
	open := NewOriginPolicy(nil)
	assert.True(t, open.AllowAll())
	assert.True(t, open.Allowed("http://anything"))

	wildcard := NewOriginPolicy([]string{"*", "http://a"})
	assert.True(t, wildcard.Allowed("http://b"))

	strict := NewOriginPolicy([]string{" http://a/ ", ""})
	assert.False(t, strict.AllowAll())
	assert.True(t, strict.Allowed("http://a"))
	assert.False(t, strict.Allowed("http://b"))
	assert.Equal(t, []string{"http://a"}, strict.List())
}
