package engine

import (
	"net"
	"strconv"
	"strings"

	"github.com/brevis-labs/emberhttpd/session"
	"github.com/brevis-labs/emberhttpd/tokenizer"
	"github.com/brevis-labs/emberhttpd/wsframe"
)

// handleSessionReadable drains one readiness event for slot: plain-HTTP
// sessions feed the tokenizer (spec.md §4.2), WebSocket sessions feed the
// frame decoder (spec.md §4.6, "not subject to request re-parsing"). It
// returns true if the slot was closed (and so must be dropped from the
// engine loop's fd table).
func (srv *Server) handleSessionReadable(slot *session.Slot) bool {
	buf := slot.ReadBuf.Bytes()
	n, err := readWithTimeout(slot.Conn, buf, srv.cfg.RecvWaitTimeout)
	if err != nil || n == 0 {
		srv.handleReadFailure(slot, err)
		return true
	}
	srv.sessions.Touch(slot)
	data := buf[:n]

	if slot.IsWebSocket {
		slot.PendingData = append(slot.PendingData, data...)
		return srv.pumpWSFrames(slot)
	}

	slot.LRUIdle = false
	if len(slot.PendingData) > 0 {
		data = append(slot.PendingData, data...)
		slot.PendingData = nil
	}
	return srv.pumpHTTPParse(slot, data)
}

// handleReadFailure implements spec.md's recv_wait_timeout taxonomy: EOF and
// hard errors get the silent Closing->Free destructor path (spec.md:195),
// but a read timeout while a request is already in flight (slot.LRUIdle
// false: request line/headers/body partially read) is a 408 the caller
// should see, not a dropped connection. A timeout while idle between
// keep-alive requests is ordinary connection-idle cleanup, not a mid-request
// timeout, so it stays silent.
func (srv *Server) handleReadFailure(slot *session.Slot, err error) {
	timedOut := false
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		timedOut = true
	}
	if timedOut && !slot.IsWebSocket && !slot.LRUIdle {
		req := newRequest(srv, slot, &reqAux{slot: slot}, "", "", 0)
		srv.sendEngineError(req, 408)
	}
	srv.closeSession(slot)
}

// pumpHTTPParse feeds data into slot's tokenizer until headers complete or
// the supplied bytes run out; in the latter case the bytes are not lost —
// Execute already consumed all of them into scratch state, so nothing needs
// to be held over except the parser's own internal buffers.
func (srv *Server) pumpHTTPParse(slot *session.Slot, data []byte) bool {
	consumed, err := slot.Parser.Execute(data)
	if err != nil {
		code := mapTokenizerError(err)
		req := newRequest(srv, slot, &reqAux{slot: slot}, "", "", 0)
		srv.sendEngineError(req, code)
		srv.closeSession(slot)
		return true
	}
	if !slot.Parser.Done() {
		return false
	}
	slot.PendingData = data[consumed:]
	return srv.dispatchHTTPRequest(slot)
}

// mapTokenizerError implements spec.md §4.2's "any tokenizer error before
// headers-complete maps to 400/505" plus the engine-local overflow
// sentinels for 414/431.
func mapTokenizerError(err error) int {
	switch err {
	case tokenizer.ErrUnsupportedVersion:
		return 505
	case errURITooLong:
		return 414
	case errHeaderTooLarge:
		return 431
	default:
		return 400
	}
}

// dispatchHTTPRequest implements spec.md §4.2 step 2-3 and §4.4/§4.6: build
// the Request, decide WebSocket-upgrade vs plain dispatch, run the matched
// handler, then apply the keep-alive policy.
func (srv *Server) dispatchHTTPRequest(slot *session.Slot) bool {
	ps, _ := slot.ParserState.(*parseState)

	method := Method(slot.Parser.Method)
	uri := string(ps.uri)
	contentLength := slot.Parser.ContentLength

	if slot.Parser.TransferEncodingChunked {
		req := newRequest(srv, slot, &reqAux{headers: ps.headers, slot: slot}, method, uri, 0)
		srv.sendEngineError(req, 411)
		srv.closeSession(slot)
		return true
	}
	if contentLength < 0 {
		contentLength = 0
	}

	aux := &reqAux{headers: ps.headers, slot: slot}
	req := newRequest(srv, slot, aux, method, uri, contentLength)

	if method == MethodGET {
		if key, ok := req.isUpgradeRequest(); ok {
			if entry, mr := srv.router.Lookup(uri, method); mr == matchOK && entry.IsWebSocket {
				if err := req.completeHandshake(entry, key); err != nil {
					srv.closeSession(slot)
					return true
				}
				srv.wsHandlers[slot.FD] = entry
				if entry.Handler != nil {
					_ = entry.Handler(req)
					commitStagedCtx(req)
				}
				slot.LRUIdle = false
				return false
			}
		}
	}

	entry, mr := srv.router.Lookup(uri, method)
	var handlerErr error
	switch mr {
	case matchNone:
		srv.sendEngineError(req, 404)
	case matchMethodMismatch:
		srv.sendEngineError(req, 405)
	case matchOK:
		handlerErr = entry.Handler(req)
		commitStagedCtx(req)
		if !aux.respStarted {
			srv.sendEngineError(req, 500)
		} else if handlerErr != nil {
			srv.log.Warnf("handler error after response sent: %v", handlerErr)
			srv.closeSession(slot)
			return true
		}
	}

	if shouldKeepAlive(slot.Parser, req, aux) {
		resetSlotParse(srv, slot)
		slot.LRUIdle = true
		return false
	}
	srv.closeSession(slot)
	return true
}

// shouldKeepAlive implements spec.md §4.4's keep-alive rule.
func shouldKeepAlive(p *tokenizer.Parser, req *Request, aux *reqAux) bool {
	if aux.closedByErr {
		return false
	}
	connHeader, _ := req.HeaderValueString("Connection")
	connHeader = strings.ToLower(connHeader)
	var wantsKeepAlive bool
	if p.MajorVersion == 1 && p.MinorVersion == 1 {
		wantsKeepAlive = connHeader != "close"
	} else {
		wantsKeepAlive = connHeader == "keep-alive"
	}
	if !wantsKeepAlive {
		return false
	}
	status := statusCode(aux.respStatus)
	if status == 204 || status == 304 || (status >= 100 && status < 200) {
		return false
	}
	return true
}

func statusCode(statusLine string) int {
	fields := strings.Fields(statusLine)
	if len(fields) == 0 {
		return 200
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 200
	}
	return n
}

// pumpWSFrames implements spec.md §4.6's post-upgrade data path: decode
// every complete frame currently buffered, auto-handle control frames
// unless the session opted into handle_ws_control_frames, and otherwise
// invoke the session's registered handler once per frame.
func (srv *Server) pumpWSFrames(slot *session.Slot) bool {
	for {
		if len(slot.PendingData) == 0 {
			return false
		}
		frame, n, err := wsframe.Decode(slot.PendingData)
		if err != nil {
			srv.closeSession(slot)
			return true
		}
		if frame == nil {
			return false // incomplete frame buffered; wait for more bytes
		}
		slot.PendingData = slot.PendingData[n:]

		if frame.Opcode.IsControl() && !slot.HandleWSControl {
			if srv.autoRespondControl(slot, frame) {
				srv.closeSession(slot)
				return true
			}
			continue
		}

		entry := srv.wsHandlers[slot.FD]
		if entry == nil || entry.Handler == nil {
			continue
		}
		aux := &reqAux{slot: slot, respStarted: true}
		req := newRequest(srv, slot, aux, MethodGET, "", 0)
		req.wsFrame = frame
		_ = entry.Handler(req)
		commitStagedCtx(req)

		if frame.Opcode == wsframe.OpClose {
			srv.closeSession(slot)
			return true
		}
	}
}
