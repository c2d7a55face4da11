package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collected struct {
	url     []byte
	fields  [][]byte
	values  [][]byte
	headersDone bool
}

func newCollector() (*collected, Callbacks) {
	c := &collected{}
	return c, Callbacks{
		OnURL: func(d []byte) error { c.url = append(c.url, d...); return nil },
		OnHeaderField: func(d []byte) error {
			if len(c.fields) == 0 || len(c.values) == len(c.fields) {
				c.fields = append(c.fields, append([]byte{}, d...))
			} else {
				c.fields[len(c.fields)-1] = append(c.fields[len(c.fields)-1], d...)
			}
			return nil
		},
		OnHeaderValue: func(d []byte) error {
			if len(c.values) < len(c.fields) {
				c.values = append(c.values, append([]byte{}, d...))
			} else {
				c.values[len(c.values)-1] = append(c.values[len(c.values)-1], d...)
			}
			return nil
		},
		OnHeadersComplete: func() (HeadersAction, error) {
			c.headersDone = true
			return ActionContinue, nil
		},
	}
}

func TestParseSimpleGet(t *testing.T) {
	c, cb := newCollector()
	p := NewParser(cb)
	req := "GET /hello HTTP/1.1\r\nHost: example.com\r\n\r\nBODY"
	n, err := p.Execute([]byte(req))
	require.NoError(t, err)
	assert.Equal(t, "GET", p.Method)
	assert.Equal(t, "/hello", string(c.url))
	assert.Equal(t, 1, p.MajorVersion)
	assert.Equal(t, 1, p.MinorVersion)
	assert.True(t, c.headersDone)
	assert.Equal(t, "Host", string(c.fields[0]))
	assert.Equal(t, "example.com", string(c.values[0]))
	assert.Equal(t, len(req)-len("BODY"), n)
}

func TestParseContentLength(t *testing.T) {
	c, cb := newCollector()
	p := NewParser(cb)
	req := "POST /submit HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"
	_, err := p.Execute([]byte(req))
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.ContentLength)
	_ = c
}

func TestParseIncrementalAcrossFeeds(t *testing.T) {
	c, cb := newCollector()
	p := NewParser(cb)
	req := "GET /a/b HTTP/1.1\r\nX-Foo: bar\r\n\r\n"
	// feed byte-by-byte to simulate arbitrarily fragmented recv() calls.
	total := 0
	for i := 0; i < len(req); i++ {
		n, err := p.Execute([]byte{req[i]})
		require.NoError(t, err)
		total += n
		if p.Done() {
			break
		}
	}
	assert.True(t, c.headersDone)
	assert.Equal(t, "/a/b", string(c.url))
}

func TestUnsupportedVersionRejected(t *testing.T) {
	_, cb := newCollector()
	p := NewParser(cb)
	_, err := p.Execute([]byte("GET / HTTP/2.0\r\n\r\n"))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestMalformedRequestLine(t *testing.T) {
	_, cb := newCollector()
	p := NewParser(cb)
	_, err := p.Execute([]byte("GET\r\n\r\n"))
	assert.Error(t, err)
}

func TestResetAllowsKeepAliveReuse(t *testing.T) {
	c, cb := newCollector()
	p := NewParser(cb)
	_, err := p.Execute([]byte("GET /one HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "/one", string(c.url))

	p.Reset()
	c.url = nil
	c.headersDone = false
	_, err = p.Execute([]byte("GET /two HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "/two", string(c.url))
}

func TestHeadersCompleteCallbackErrorPropagates(t *testing.T) {
	_, cb := newCollector()
	cb.OnHeadersComplete = func() (HeadersAction, error) { return ActionContinue, assert.AnError }
	p := NewParser(cb)
	_, err := p.Execute([]byte("GET / HTTP/1.1\r\n\r\n"))
	assert.ErrorIs(t, err, assert.AnError)
}
