package httpd

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/brevis-labs/emberhttpd/config"
	"github.com/brevis-labs/emberhttpd/wsframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestGetUnknownURIReturns404(t *testing.T) {
	srv, err := Start(config.WithPort(0))
	require.NoError(t, err)
	defer srv.Stop()

	conn := dial(t, srv)
	conn.Write([]byte("GET /nope HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	buf := make([]byte, 512)
	n, _ := resp.Body.Read(buf)
	assert.Contains(t, string(buf[:n]), "Nothing matches the given URI")
}

func TestPostToGetOnlyHandlerReturns405(t *testing.T) {
	srv, err := Start(config.WithPort(0))
	require.NoError(t, err)
	defer srv.Stop()

	require.NoError(t, srv.RegisterURIHandler(HandlerEntry{
		URI:    "/x",
		Method: MethodGET,
		Handler: func(r *Request) error {
			r.SetStatus("200 OK")
			return r.Send([]byte("ok"))
		},
	}))

	conn := dial(t, srv)
	conn.Write([]byte("POST /x HTTP/1.1\r\nHost: x\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	assert.Equal(t, 405, resp.StatusCode)
}

func TestURITooLongReturns414(t *testing.T) {
	srv, err := Start(config.WithPort(0), config.WithMaxURILen(16))
	require.NoError(t, err)
	defer srv.Stop()

	conn := dial(t, srv)
	longPath := "/" + strings.Repeat("a", 32)
	conn.Write([]byte("GET " + longPath + " HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	assert.Equal(t, 414, resp.StatusCode)
}

func TestHeaderTooLongReturns431(t *testing.T) {
	srv, err := Start(config.WithPort(0), config.WithMaxReqHdrLen(32))
	require.NoError(t, err)
	defer srv.Stop()

	conn := dial(t, srv)
	longHeader := "X-Long: " + strings.Repeat("a", 64) + "\r\n"
	conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n" + longHeader + "Connection: close\r\n\r\n"))

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	assert.Equal(t, 431, resp.StatusCode)
}

func TestChunkedResponseExactBytes(t *testing.T) {
	srv, err := Start(config.WithPort(0))
	require.NoError(t, err)
	defer srv.Stop()

	require.NoError(t, srv.RegisterURIHandler(HandlerEntry{
		URI:    "/chunked",
		Method: MethodGET,
		Handler: func(r *Request) error {
			r.SendChunk([]byte("Hello"))
			r.SendChunk([]byte(", "))
			r.SendChunk([]byte("world!"))
			r.SendChunk(nil)
			return nil
		},
	}))

	conn := dial(t, srv)
	conn.Write([]byte("GET /chunked HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))

	br := bufio.NewReader(conn)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", line)

	sawChunkedHeader := false
	for {
		l, err := br.ReadString('\n')
		require.NoError(t, err)
		if l == "\r\n" {
			break
		}
		if strings.TrimSpace(l) == "Transfer-Encoding: chunked" {
			sawChunkedHeader = true
		}
	}
	assert.True(t, sawChunkedHeader)

	rest := make([]byte, 256)
	n, _ := br.Read(rest)
	assert.Equal(t, "5\r\nHello\r\n2\r\n, \r\n6\r\nworld!\r\n0\r\n\r\n", string(rest[:n]))
}

func TestQueryParsing(t *testing.T) {
	srv, err := Start(config.WithPort(0))
	require.NoError(t, err)
	defer srv.Stop()

	type captured struct {
		queryLen       int
		idValue        string
		idFound        bool
		missingFound   bool
		truncOnTinyBuf bool
	}
	results := make(chan captured, 1)

	require.NoError(t, srv.RegisterURIHandler(HandlerEntry{
		URI:    "/search",
		Method: MethodGET,
		Handler: func(r *Request) error {
			var c captured
			c.queryLen = r.QueryLen()
			buf := make([]byte, 16)
			n, _, found := r.QueryKeyValue("id", buf)
			c.idValue = string(buf[:n])
			c.idFound = found
			_, _, c.missingFound = r.QueryKeyValue("nope", buf)
			tiny := make([]byte, 1)
			_, trunc, _ := r.QueryKeyValue("id", tiny)
			c.truncOnTinyBuf = trunc
			results <- c
			r.SetStatus("200 OK")
			return r.Send(nil)
		},
	}))

	conn := dial(t, srv)
	conn.Write([]byte("GET /search?q=hello%20world&id=123 HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	c := <-results
	assert.Equal(t, len("q=hello%20world&id=123"), c.queryLen)
	assert.Equal(t, "123", c.idValue)
	assert.True(t, c.idFound)
	assert.False(t, c.missingFound)
	assert.True(t, c.truncOnTinyBuf)
}

func TestWebSocketEchoAndClose(t *testing.T) {
	srv, err := Start(config.WithPort(0))
	require.NoError(t, err)
	defer srv.Stop()

	require.NoError(t, srv.RegisterURIHandler(HandlerEntry{
		URI:         "/ws",
		Method:      MethodGET,
		IsWebSocket: true,
		Handler: func(r *Request) error {
			opcode, n, err := r.RecvFrame(nil, 0)
			if err != nil {
				return nil // handshake-completion invocation carries no frame
			}
			buf := make([]byte, n)
			_, _, _ = r.RecvFrame(buf, len(buf))
			if opcode == byte(wsframe.OpText) {
				return r.SendFrame(true, opcode, buf)
			}
			return nil
		},
	}))

	conn := dial(t, srv)
	key := "dGhlIHNhbXBsZSBub25jZQ=="
	req := "GET /ws HTTP/1.1\r\n" +
		"Host: x\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + key + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	conn.Write([]byte(req))

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 101 Switching Protocols\r\n", statusLine)
	sawAccept := false
	for {
		l, err := br.ReadString('\n')
		require.NoError(t, err)
		if l == "\r\n" {
			break
		}
		if strings.Contains(l, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=") {
			sawAccept = true
		}
	}
	assert.True(t, sawAccept)

	payload := []byte("Hello WebSocket!")
	maskKey := [4]byte{0x11, 0x22, 0x33, 0x44}
	raw, err := wsframe.EncodeMasked(&wsframe.Frame{Fin: true, Opcode: wsframe.OpText, Payload: payload}, maskKey)
	require.NoError(t, err)
	conn.Write(raw)

	echoBuf := make([]byte, 256)
	n, err := br.Read(echoBuf)
	require.NoError(t, err)
	frame, consumed, err := wsframe.Decode(echoBuf[:n])
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, wsframe.OpText, frame.Opcode)
	assert.False(t, frame.Masked)
	assert.Equal(t, string(payload), string(frame.Payload))
	assert.Equal(t, n, consumed)

	closeRaw, err := wsframe.EncodeMasked(&wsframe.Frame{Fin: true, Opcode: wsframe.OpClose}, maskKey)
	require.NoError(t, err)
	conn.Write(closeRaw)

	closeBuf := make([]byte, 16)
	n, err = br.Read(closeBuf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x88, 0x00}, closeBuf[:n])
}

func TestLRUEvictionUnderSingleSocketBudget(t *testing.T) {
	srv, err := Start(config.WithPort(0), config.WithMaxOpenSockets(1), config.WithLRUPurge(true))
	require.NoError(t, err)
	defer srv.Stop()

	require.NoError(t, srv.RegisterURIHandler(HandlerEntry{
		URI:    "/idle",
		Method: MethodGET,
		Handler: func(r *Request) error {
			r.SetStatus("200 OK")
			return r.Send(nil)
		},
	}))

	a, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer a.Close()
	a.Write([]byte("GET /idle HTTP/1.1\r\nHost: x\r\n\r\n"))
	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = http.ReadResponse(bufio.NewReader(a), nil)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond) // let A settle into the idle, between-requests state

	b, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer b.Close()
	b.Write([]byte("GET /idle HTTP/1.1\r\nHost: x\r\n\r\n"))
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	respB, err := http.ReadResponse(bufio.NewReader(b), nil)
	require.NoError(t, err)
	assert.Equal(t, 200, respB.StatusCode)

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	one := make([]byte, 1)
	_, err = a.Read(one)
	assert.Error(t, err, "A's connection should be closed by the server once B evicts it")
}
