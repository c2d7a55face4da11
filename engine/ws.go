package engine

import (
	"strings"

	"github.com/brevis-labs/emberhttpd/emberr"
	"github.com/brevis-labs/emberhttpd/handshake"
	"github.com/brevis-labs/emberhttpd/session"
	"github.com/brevis-labs/emberhttpd/wsframe"
)

// FdKind is ws_get_fd_info's result (spec.md §4.6).
type FdKind int

const (
	FdInvalid FdKind = iota
	FdHTTP
	FdWebSocket
)

// isUpgradeRequest checks the headers the engine has already parsed against
// spec.md §4.6's upgrade preconditions and, if they hold, returns the
// client's handshake key.
func (r *Request) isUpgradeRequest() (key string, ok bool) {
	return handshake.IsUpgradeRequest(func(name string) []string {
		return r.headerValues(name)
	})
}

// subprotocolMatch returns the first subprotocol in the client's
// Sec-WebSocket-Protocol header that the handler declares support for, or
// "" if none match.
func subprotocolMatch(clientOffered []string, supported string) string {
	if supported == "" {
		return ""
	}
	for _, offered := range clientOffered {
		for _, tok := range strings.Split(offered, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), supported) {
				return supported
			}
		}
	}
	return ""
}

// completeHandshake implements spec.md §4.6 steps 1-3: derive the accept
// key, emit the 101 response, and mark the session is_websocket.
func (r *Request) completeHandshake(entry *HandlerEntry, clientKey string) error {
	accept := handshake.AcceptKey(clientKey)
	r.SetHeader("Upgrade", "websocket")
	r.SetHeader("Connection", "Upgrade")
	r.SetHeader("Sec-WebSocket-Accept", accept)
	if sp := subprotocolMatch(r.headerValues("Sec-WebSocket-Protocol"), entry.SupportedSubprotocol); sp != "" {
		r.SetHeader("Sec-WebSocket-Protocol", sp)
		r.aux.slot.WSSubprotocol = sp
	}
	r.aux.respStarted = true
	head := r.buildHeaderBlock(0, false)
	head = stripContentLength(head, "101 Switching Protocols")
	if err := writeAll(r.aux.slot.Conn, head, r.srv.cfg.SendWaitTimeout); err != nil {
		return mapIOError(err)
	}
	r.aux.slot.IsWebSocket = true
	r.aux.slot.HandleWSControl = entry.HandleWSControlFrames
	return nil
}

// stripContentLength rewrites the header block's status line for the 101
// response and removes the Content-Length line Send's normal path would
// have added, since a protocol switch carries no body.
func stripContentLength(head []byte, statusLine string) []byte {
	lines := strings.Split(string(head), "\r\n")
	out := make([]string, 0, len(lines))
	out = append(out, "HTTP/1.1 "+statusLine)
	for _, l := range lines[1:] {
		if strings.HasPrefix(l, "Content-Length:") {
			continue
		}
		out = append(out, l)
	}
	return []byte(strings.Join(out, "\r\n"))
}

// RecvFrame implements spec.md §4.6's ws_recv_frame: when max is 0, only
// opcode/length are reported (a peek) without consuming payload; otherwise
// the full payload is read into buf (already unmasked). The engine decodes
// one complete frame per handler invocation (see pumpWSFrames in
// dispatch.go) and stashes it on the request before calling the handler,
// so RecvFrame here only ever serves that one already-decoded frame.
func (r *Request) RecvFrame(buf []byte, max int) (opcode byte, n int, err error) {
	frame := r.aux.wsFrame
	if frame == nil {
		return 0, 0, emberr.New(emberr.Invalid, "no frame available outside a websocket handler invocation")
	}
	if max == 0 {
		return byte(frame.Opcode), len(frame.Payload), nil
	}
	n = copy(buf, frame.Payload)
	return byte(frame.Opcode), n, nil
}

// SendFrame implements spec.md §4.6's ws_send_frame: writes (fin, opcode,
// unmasked payload) to the peer. Server-to-client frames are never masked
// (RFC 6455 §5.1).
func (r *Request) SendFrame(fin bool, opcode byte, payload []byte) error {
	raw, err := wsframe.Encode(&wsframe.Frame{Fin: fin, Opcode: wsframe.Opcode(opcode), Payload: payload})
	if err != nil {
		return emberr.Wrap(emberr.Invalid, "encode frame", err)
	}
	if err := writeAll(r.aux.slot.Conn, raw, r.srv.cfg.SendWaitTimeout); err != nil {
		return mapIOError(err)
	}
	r.srv.touch(r.aux.slot)
	return nil
}

// autoRespondControl implements spec.md §4.6's control-frame policy for
// sessions that did not opt into handle_ws_control_frames: PING -> PONG
// echo, CLOSE -> echo CLOSE then schedule socket close.
func (srv *Server) autoRespondControl(slot *session.Slot, frame *wsframe.Frame) (shouldClose bool) {
	switch frame.Opcode {
	case wsframe.OpPing:
		raw, err := wsframe.Encode(&wsframe.Frame{Fin: true, Opcode: wsframe.OpPong, Payload: frame.Payload})
		if err == nil {
			_ = writeAll(slot.Conn, raw, srv.cfg.SendWaitTimeout)
		}
		return false
	case wsframe.OpClose:
		raw, err := wsframe.Encode(&wsframe.Frame{Fin: true, Opcode: wsframe.OpClose, Payload: frame.Payload})
		if err == nil {
			_ = writeAll(slot.Conn, raw, srv.cfg.SendWaitTimeout)
		}
		return true
	}
	return false
}
