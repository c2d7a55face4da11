// Package handshake computes the RFC 6455 Sec-WebSocket-Accept value and
// validates the upgrade header set, grounded on the teacher's
// protocol/handshake.go (momentics/hioload-ws). Unlike the teacher, which
// reads and parses a whole HTTP request itself via net/http, this package
// only performs the final accept-key derivation: the engine's tokenizer has
// already extracted the header values by the time this is called.
package handshake

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"
)

// WebSocketGUID is the RFC 6455 magic string concatenated with the client key.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// RequiredVersion is the only WebSocket protocol version this server accepts.
const RequiredVersion = "13"

// AcceptKey computes Base64(SHA1(clientKey || GUID)), the Sec-WebSocket-Accept
// response header value (spec.md §4.6 step 1).
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(WebSocketGUID))
	sum := h.Sum(nil)
	return base64.StdEncoding.EncodeToString(sum)
}

// HeaderTokenContains reports whether any comma-separated value in vals
// contains token, case-insensitively — used to check Connection: Upgrade
// and Upgrade: websocket, which may be combined with other tokens.
func HeaderTokenContains(vals []string, token string) bool {
	token = strings.ToLower(token)
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(part)) == token {
				return true
			}
		}
	}
	return false
}

// IsUpgradeRequest reports whether the given header accessor function
// indicates a valid WebSocket upgrade per spec.md §4.6: Connection: Upgrade,
// Upgrade: websocket, Sec-WebSocket-Version: 13, and a non-empty
// Sec-WebSocket-Key.
func IsUpgradeRequest(getHeader func(name string) []string) (key string, ok bool) {
	if !HeaderTokenContains(getHeader("Connection"), "upgrade") {
		return "", false
	}
	if !HeaderTokenContains(getHeader("Upgrade"), "websocket") {
		return "", false
	}
	ver := getHeader("Sec-WebSocket-Version")
	if len(ver) == 0 || strings.TrimSpace(ver[0]) != RequiredVersion {
		return "", false
	}
	keys := getHeader("Sec-WebSocket-Key")
	if len(keys) == 0 || strings.TrimSpace(keys[0]) == "" {
		return "", false
	}
	return strings.TrimSpace(keys[0]), true
}
