// Package engine implements the connection session engine of spec.md §2-§5:
// the single-threaded event loop, request parser/dispatch loop, response
// writer, and WebSocket subsystem. Grounded on the teacher's lowlevel/server
// package (momentics/hioload-ws: server.go, handler_chain.go, listener.go)
// for the overall "one struct owns the loop, options shape it" structure,
// generalized from the teacher's goroutine-per-connection reactor to the
// single-threaded epoll loop spec.md §4.1 requires.
package engine

import (
	"net/url"
	"strings"

	"github.com/brevis-labs/emberhttpd/emberr"
	"github.com/brevis-labs/emberhttpd/session"
	"github.com/brevis-labs/emberhttpd/wsframe"
)

// Method is the HTTP request method token as the bundled tokenizer read it
// (any run of uppercase letters); the constants below name the common ones.
type Method string

const (
	MethodGET     Method = "GET"
	MethodHEAD    Method = "HEAD"
	MethodPOST    Method = "POST"
	MethodPUT     Method = "PUT"
	MethodDELETE  Method = "DELETE"
	MethodOPTIONS Method = "OPTIONS"
	MethodPATCH   Method = "PATCH"
)

// headerLine is one on-the-wire header, stored in the order seen.
type headerLine struct {
	name  string
	value string
}

// reqAux is the request auxiliary state of spec.md §3: the scratch buffer's
// logical view (already split into header lines by the tokenizer callbacks),
// parsed URL offsets, and body accounting. Unlike the original C source the
// scratch is not a raw byte ring here — Go's GC-backed slices make a parsed
// []headerLine the natural "bounded scratch" substitute, capacity-checked at
// append time exactly like spec.md requires ("scratch-buffer writes never
// exceed its capacity").
type reqAux struct {
	headers      []headerLine
	maxHeaders   int
	remainingLen int64

	parsedURL *url.URL
	rawQuery  string

	respStatus  string
	respType    string
	respHeaders []headerLine
	respStarted bool
	chunked     bool
	closedByErr bool

	slot *session.Slot

	// wsFrame is the one already-decoded WebSocket frame this request
	// invocation exists to deliver, set by pumpWSFrames before calling the
	// handler (spec.md §4.6's ws_recv_frame contract).
	wsFrame *wsframe.Frame

	// ctxStaged backs Request.UserCtx when IgnoreSessCtxChanges is set: a
	// sess_set_ctx call during this request writes here instead of the live
	// session cell, and commitStagedCtx moves it over once the handler
	// returns (see dispatch.go).
	ctxStaged session.Context
}

// Request is the handler-facing request object of spec.md §3/§4.4.
type Request struct {
	Method        Method
	URI           string
	ContentLength int64

	srv *Server
	aux *reqAux

	// IgnoreSessCtxChanges mirrors spec.md's ignore_sess_ctx_changes flag:
	// when true, sess_set_ctx calls made while this request is in flight do
	// not take effect until the handler returns.
	IgnoreSessCtxChanges bool
}

// newRequest builds a Request from the aux state the tokenizer callbacks
// populated for slot, per spec.md §4.2's on_headers_complete step 2.
func newRequest(srv *Server, slot *session.Slot, aux *reqAux, method Method, uri string, contentLength int64) *Request {
	aux.slot = slot
	aux.remainingLen = contentLength
	aux.maxHeaders = srv.cfg.MaxRespHeaders
	if u, err := url.Parse(uri); err == nil {
		aux.parsedURL = u
		aux.rawQuery = u.RawQuery
	}
	return &Request{
		Method:        method,
		URI:           uri,
		ContentLength: contentLength,
		srv:           srv,
		aux:           aux,
	}
}

// RemainingLen reports body bytes not yet consumed via Recv.
func (r *Request) RemainingLen() int64 { return r.aux.remainingLen }

// Recv implements spec.md §4.4's req_recv: read up to min(len(buf),
// remaining_len) bytes of request body, consuming any already-buffered
// pending bytes first. Returns a positive count, 0 on orderly EOF, or an
// *emberr.Error wrapping Timeout/Invalid/Fail on failure.
func (r *Request) Recv(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, emberr.New(emberr.Invalid, "recv buffer must be non-empty")
	}
	want := int64(len(buf))
	if want > r.aux.remainingLen {
		want = r.aux.remainingLen
	}
	if want == 0 {
		return 0, nil
	}
	slot := r.aux.slot
	n := 0
	if len(slot.PendingData) > 0 {
		n = copy(buf[:want], slot.PendingData)
		slot.PendingData = slot.PendingData[n:]
		r.aux.remainingLen -= int64(n)
		return n, nil
	}
	read, err := readWithTimeout(slot.Conn, buf[:want], r.srv.cfg.RecvWaitTimeout)
	if err != nil {
		return 0, mapIOError(err)
	}
	r.srv.touch(slot)
	r.aux.remainingLen -= int64(read)
	return read, nil
}

// SetStatus stages the response status line (spec.md §4.4 resp_set_status),
// e.g. "200 OK".
func (r *Request) SetStatus(text string) { r.aux.respStatus = text }

// SetType stages the Content-Type header.
func (r *Request) SetType(text string) { r.aux.respType = text }

// SetHeader stages (or replaces) a response header by name, enforcing
// spec.md §6's max_resp_headers ceiling on distinct staged header names.
func (r *Request) SetHeader(name, value string) error {
	for i := range r.aux.respHeaders {
		if strings.EqualFold(r.aux.respHeaders[i].name, name) {
			r.aux.respHeaders[i].value = value
			return nil
		}
	}
	if r.aux.maxHeaders > 0 && len(r.aux.respHeaders) >= r.aux.maxHeaders {
		return emberr.New(emberr.NoMem, "max_resp_headers exceeded")
	}
	r.aux.respHeaders = append(r.aux.respHeaders, headerLine{name, value})
	return nil
}

// QueryLen returns the length of the raw query string (spec.md §8 scenario 7
// "get_url_query_len").
func (r *Request) QueryLen() int { return len(r.aux.rawQuery) }

// QueryString returns the raw, un-decoded query string.
func (r *Request) QueryString() string { return r.aux.rawQuery }

// QueryKeyValue looks up key in the query string, distinguishing "not
// present" from "present but buf too small" per spec.md §4.4.
func (r *Request) QueryKeyValue(key string, buf []byte) (n int, trunc bool, found bool) {
	values, err := url.ParseQuery(r.aux.rawQuery)
	if err != nil {
		return 0, false, false
	}
	vs, ok := values[key]
	if !ok || len(vs) == 0 {
		return 0, false, false
	}
	v := vs[0]
	if len(v) > len(buf) {
		return 0, true, true
	}
	return copy(buf, v), false, true
}

// HeaderValueLen returns the length of header name's value, or -1 if absent.
func (r *Request) HeaderValueLen(name string) int {
	for _, h := range r.aux.headers {
		if strings.EqualFold(h.name, name) {
			return len(h.value)
		}
	}
	return -1
}

// HeaderValueString returns header name's value and whether it was found.
func (r *Request) HeaderValueString(name string) (string, bool) {
	for _, h := range r.aux.headers {
		if strings.EqualFold(h.name, name) {
			return h.value, true
		}
	}
	return "", false
}

// headerValues returns every value seen for name, in order, for callers that
// need multi-valued header semantics (e.g. the Connection/Upgrade tokens the
// WebSocket handshake inspects).
func (r *Request) headerValues(name string) []string {
	var out []string
	for _, h := range r.aux.headers {
		if strings.EqualFold(h.name, name) {
			out = append(out, h.value)
		}
	}
	return out
}

// CookieVal extracts one cookie's value from the Cookie header, distinct
// NOT_FOUND vs TRUNC semantics matching QueryKeyValue.
func (r *Request) CookieVal(name string, buf []byte) (n int, trunc bool, found bool) {
	cookieHeader, ok := r.HeaderValueString("Cookie")
	if !ok {
		return 0, false, false
	}
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		k, v, ok := strings.Cut(part, "=")
		if !ok || k != name {
			continue
		}
		if len(v) > len(buf) {
			return 0, true, true
		}
		return copy(buf, v), false, true
	}
	return 0, false, false
}

// UserCtx returns the session-scoped user context cell (spec.md sess_get_ctx).
// When IgnoreSessCtxChanges is set, this hands back a per-request staging
// cell instead of the live one: a sess_set_ctx call during this request does
// not reach the session until the handler returns, per spec.md's
// ignore_sess_ctx_changes contract (committed by commitStagedCtx in
// dispatch.go, right after the handler call returns).
func (r *Request) UserCtx() *session.Context {
	if r.IgnoreSessCtxChanges {
		return &r.aux.ctxStaged
	}
	return &r.aux.slot.UserCtx
}

// commitStagedCtx moves a staged sess_set_ctx write (see UserCtx) into the
// live session cell once the handler invocation that made it has returned.
// A no-op when the flag was unset or the handler never staged a write.
func commitStagedCtx(req *Request) {
	if !req.IgnoreSessCtxChanges || !req.aux.ctxStaged.Dirty() {
		return
	}
	value, free := req.aux.ctxStaged.Take()
	req.aux.slot.UserCtx.Set(value, free)
}

// FD returns the underlying session file descriptor, for ws_get_fd_info-style
// introspection and broadcast bookkeeping.
func (r *Request) FD() int { return r.aux.slot.FD }
