package engine

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/brevis-labs/emberhttpd/emberr"
)

// canned error bodies, keyed by HTTP status code, matching the teacher's
// practice of small static templates in the facade layer rather than a
// templating engine (grounded on momentics/hioload-ws facade error paths).
var cannedBodies = map[int]string{
	400: "Bad Request",
	404: "Nothing matches the given URI",
	405: "Method Not Allowed",
	408: "Request Timeout",
	411: "Length Required",
	414: "URI Too Long",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	505: "HTTP Version Not Supported",
}

// writeAll retries partial writes until every byte is sent or a hard error
// occurs, matching spec.md §4.5's "retry on partial send" requirement. The
// deadline is set once per call rather than per retry, so send_wait_timeout
// bounds the whole write, not each individual partial write.
func writeAll(conn net.Conn, buf []byte, timeout time.Duration) error {
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// buildHeaderBlock renders the staged status line, content headers, and
// response headers into the wire header block spec.md §4.5 describes,
// including the terminating blank line; the caller writes what follows
// (Send a fixed-length body, SendChunk the first chunk).
func (r *Request) buildHeaderBlock(contentLength int64, chunked bool) []byte {
	status := r.aux.respStatus
	if status == "" {
		status = "200 OK"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %s\r\n", status)
	if r.aux.respType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", r.aux.respType)
	}
	if chunked {
		b.WriteString("Transfer-Encoding: chunked\r\n")
	} else if contentLength >= 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", contentLength)
	}
	wroteConnection := false
	for _, h := range r.aux.respHeaders {
		fmt.Fprintf(&b, "%s: %s\r\n", h.name, h.value)
		if strings.EqualFold(h.name, "Connection") {
			wroteConnection = true
		}
	}
	if !wroteConnection && r.aux.closedByErr {
		b.WriteString("Connection: close\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Send implements spec.md §4.4's resp_send: status line, headers,
// Content-Length, blank line, then body, completing the response exactly
// once.
func (r *Request) Send(body []byte) error {
	if r.aux.respStarted {
		return emberr.New(emberr.Invalid, "response already completed")
	}
	r.aux.respStarted = true
	head := r.buildHeaderBlock(int64(len(body)), false)
	conn := r.aux.slot.Conn
	timeout := r.srv.cfg.SendWaitTimeout
	if err := writeAll(conn, head, timeout); err != nil {
		return mapIOError(err)
	}
	if len(body) > 0 {
		if err := writeAll(conn, body, timeout); err != nil {
			return mapIOError(err)
		}
	}
	r.srv.touch(r.aux.slot)
	return nil
}

// SendChunk implements spec.md §4.4/§4.5's resp_send_chunk: first call adds
// Transfer-Encoding: chunked and emits the header block; every call, the
// first included, emits one `<hex-len>\r\n<bytes>\r\n` chunk; a nil/empty body call
// emits the terminal `0\r\n\r\n` chunk and completes the response.
func (r *Request) SendChunk(body []byte) error {
	conn := r.aux.slot.Conn
	timeout := r.srv.cfg.SendWaitTimeout
	if !r.aux.chunked {
		r.aux.chunked = true
		r.aux.respStarted = true
		if err := writeAll(conn, r.buildHeaderBlock(-1, true), timeout); err != nil {
			return mapIOError(err)
		}
	}
	n := len(body)
	chunk := []byte(strconv.FormatInt(int64(n), 16) + "\r\n")
	if err := writeAll(conn, chunk, timeout); err != nil {
		return mapIOError(err)
	}
	if n > 0 {
		if err := writeAll(conn, body, timeout); err != nil {
			return mapIOError(err)
		}
	}
	if err := writeAll(conn, []byte("\r\n"), timeout); err != nil {
		return mapIOError(err)
	}
	// n==0 here means this was the terminal chunk; the response is complete
	// and no further SendChunk calls on this request are valid.
	r.srv.touch(r.aux.slot)
	return nil
}

// SendErr implements spec.md §4.4's resp_send_err: delegate to a registered
// per-code error handler if present, else emit a canned page with
// Connection: close.
func (r *Request) SendErr(code int, body string) error {
	r.aux.closedByErr = true
	if fn, ok := r.srv.errHandlers[code]; ok {
		return fn(r)
	}
	return r.sendCanned(code, body)
}

// sendCanned emits spec.md §7's default error page for code, used both from
// SendErr and from engine-detected errors raised before dispatch (malformed
// request line, URI/header overflow, and so on).
func (r *Request) sendCanned(code int, body string) error {
	if body == "" {
		body = cannedBodies[code]
	}
	text, ok := emberr.HTTPStatusText[code]
	if !ok {
		text = "Error"
	}
	r.aux.respStatus = fmt.Sprintf("%d %s", code, text)
	r.aux.closedByErr = true
	r.SetHeader("Connection", "close")
	return r.Send([]byte(body))
}

// sendEngineError writes the canned error page for code on a Request the
// caller has built (a bare one for errors detected before headers complete,
// the dispatched one for 404/405/411/500), logging a failed write — see
// callers in dispatch.go.
func (srv *Server) sendEngineError(req *Request, code int) {
	if err := req.sendCanned(code, ""); err != nil {
		srv.log.Warnf("send error page failed: %v", err)
	}
}
