package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRedactsSecrets(t *testing.T) {
	l := &Logger{redact: true, salt: "pepper"}
	out := l.sanitize([]interface{}{"password", "hunter2", "route", "/api/feed", "user_id", "u-1", "dangling"})

	require.Len(t, out, 7)
	assert.Equal(t, "[REDACTED]", out[1])
	assert.Equal(t, "/api/feed", out[3])
	hashed, ok := out[5].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(hashed, "hash:"))
	assert.NotContains(t, hashed, "u-1")
	assert.Equal(t, "dangling", out[6])
}

func TestSanitizeDisabled(t *testing.T) {
	l := &Logger{}
	kv := []interface{}{"token", "abc"}
	assert.Equal(t, kv, l.sanitize(kv))
}

func TestSanitizeJWTValue(t *testing.T) {
	l := &Logger{redact: true}
	jwtLike := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1LTEiLCJleHAiOjF9.sig"
	out := l.sanitize([]interface{}{"header", jwtLike})
	assert.Equal(t, "[REDACTED]", out[1])
}

func TestHashIsStable(t *testing.T) {
	l := &Logger{redact: true, salt: "s"}
	assert.Equal(t, l.hash("creator-9"), l.hash("creator-9"))
	assert.NotEqual(t, l.hash("creator-9"), l.hash("creator-8"))
	assert.Equal(t, "", l.hash(nil))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)

	l, err := New(Options{Env: "prod", Level: "warn"})
	require.NoError(t, err)
	l.Info("suppressed")
	l.Sync()
}
