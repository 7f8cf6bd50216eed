package service

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"  bob  ":                     "bob",
		"al\x00ice":                   "alice",
		"":                            "",
		"abcdefghijklmnopqrstuvwxyz":  "abcdefghijklmnopqrst",
		"ёжикёжикёжикёжикёжикёжик":    "ёжикёжикёжикёжикёжик",
	}
	for in, want := range cases {
		got := sanitizeName(in, 20)
		assert.Equal(t, want, got, "input %q", in)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), 20)
	}
}

func TestColorForIsStable(t *testing.T) {
	assert.Equal(t, colorFor("abc"), colorFor("abc"))
	assert.Contains(t, palette, colorFor("xyz"))
	assert.True(t, validColor(colorFor("xyz")))
}

func TestValidColor(t *testing.T) {
	assert.True(t, validColor("#00ffAA"))
	assert.False(t, validColor("red"))
	assert.False(t, validColor("#12345g"))
	assert.False(t, validColor(""))
}

func TestDefaultName(t *testing.T) {
	assert.Equal(t, "Guest-1f2e", defaultName("1f2e3d4c-0000"))
	assert.Equal(t, "Guest-ab", defaultName("ab"))
}
