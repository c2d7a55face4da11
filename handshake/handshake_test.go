package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcceptKeyRFC6455Vector(t *testing.T) {
	// spec.md §8 concrete vector.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", got)
}

func TestHeaderTokenContains(t *testing.T) {
	assert.True(t, HeaderTokenContains([]string{"keep-alive, Upgrade"}, "upgrade"))
	assert.False(t, HeaderTokenContains([]string{"keep-alive"}, "upgrade"))
}

func TestIsUpgradeRequest(t *testing.T) {
	hdrs := map[string][]string{
		"Connection":            {"Upgrade"},
		"Upgrade":               {"websocket"},
		"Sec-WebSocket-Version": {"13"},
		"Sec-WebSocket-Key":     {"dGhlIHNhbXBsZSBub25jZQ=="},
	}
	key, ok := IsUpgradeRequest(func(name string) []string { return hdrs[name] })
	assert.True(t, ok)
	assert.Equal(t, "dGhlIHNhbXBsZSBub25jZQ==", key)

	delete(hdrs, "Sec-WebSocket-Key")
	_, ok = IsUpgradeRequest(func(name string) []string { return hdrs[name] })
	assert.False(t, ok)
}
