// Package tokenizer implements the incremental HTTP/1.x request-line and
// header byte-stream parser that spec.md §1/§6 treats as an external
// collaborator ("an existing incremental parser that emits callbacks for
// method/URL/header-field/header-value/body/complete"). No module in the
// retrieval pack packages the joyent/http_parser callback contract as an
// importable Go library, so this package renders that contract directly in
// Go, following the callback names, the at/len delivery style (rendered
// here as byte-slice views into the caller's buffer, which is the idiomatic
// Go equivalent of a C pointer+length pair), and the 0/1/2
// on_headers_complete return convention documented in
// original_source/lib/http-parser/http_parser.h and reiterated by spec.md §9.
//
// The parser only recognizes request lines (method + URI + HTTP-version)
// and headers; request bodies are consumed by the engine directly against
// Content-Length, matching spec.md §4.2's division of labor.
package tokenizer

import (
	"errors"
)

// HeadersAction is returned from Callbacks.OnHeadersComplete, mirroring the
// tokenizer's 0/1/2 return convention (continue / skip body / skip body and
// close) preserved verbatim per spec.md §9.
type HeadersAction int

const (
	ActionContinue        HeadersAction = 0
	ActionSkipBody        HeadersAction = 1
	ActionSkipBodyAndClose HeadersAction = 2
)

// Callbacks are invoked as the parser recognizes each element of the
// request line and headers. Each data callback may be invoked multiple
// times for a single logical field if the underlying data arrives
// fragmented across recv() calls; returning a non-nil error halts parsing
// (spec.md: "Overflow -> 414/431").
type Callbacks struct {
	OnURL             func(data []byte) error
	OnHeaderField     func(data []byte) error
	OnHeaderValue     func(data []byte) error
	OnHeadersComplete func() (HeadersAction, error)
}

// Errors surfaced by Execute map directly to the spec.md §7 taxonomy at the
// call site (400/505).
var (
	ErrMalformed          = errors.New("tokenizer: malformed request")
	ErrUnsupportedVersion = errors.New("tokenizer: unsupported HTTP version")
)

type state int

const (
	stMethod state = iota
	stSpacesBeforeURL
	stURL
	stSpacesBeforeVersion
	stVersionH
	stVersionHT
	stVersionHTT
	stVersionHTTP
	stVersionSlash
	stVersionMajor
	stVersionDot
	stVersionMinor
	stExpectCR
	stExpectLF
	stHeaderFieldStart
	stHeaderField
	stHeaderValueLeadingWS
	stHeaderValue
	stHeaderValueCR
	stHeadersAlmostDone // blank-line CR seen, expect final LF
	stDone
)

// Parser is one request's incremental tokenizer instance. The engine keeps
// one Parser per session slot and builds a fresh one between keep-alive
// requests (spec.md §4.2 "Any tokenizer error before headers-complete maps to
// 400/505").
type Parser struct {
	cb Callbacks

	st state

	Method      string
	MajorVersion int
	MinorVersion int
	// ContentLength is parsed from the Content-Length header as the bytes
	// stream past; -1 means not yet seen. TransferEncodingChunked is set if
	// a chunked Transfer-Encoding header was seen on the REQUEST (which
	// spec.md §6 says the core does not decode — such requests surface as
	// an error at dispatch time).
	ContentLength           int64
	TransferEncodingChunked bool

	methodBuf     []byte
	headerNameBuf []byte
	headerIsCL    bool // current header field (case-insensitively) is Content-Length
	headerIsTE    bool // current header field is Transfer-Encoding
	headerValBuf  []byte
}

// NewParser constructs a Parser that invokes cb as elements are recognized.
func NewParser(cb Callbacks) *Parser {
	p := &Parser{cb: cb}
	p.Reset()
	return p
}

// Reset rearms the parser to parse a new request line, preserving the
// registered callbacks, so one Parser can serve successive requests on the
// same connection. The engine does not call it: it replaces the slot's
// Parser with a new one instead.
func (p *Parser) Reset() {
	p.st = stMethod
	p.Method = ""
	p.MajorVersion = 0
	p.MinorVersion = 0
	p.ContentLength = -1
	p.TransferEncodingChunked = false
	p.methodBuf = p.methodBuf[:0]
	p.headerNameBuf = p.headerNameBuf[:0]
	p.headerValBuf = p.headerValBuf[:0]
	p.headerIsCL = false
	p.headerIsTE = false
}

// Done reports whether headers-complete has already fired for this parse.
func (p *Parser) Done() bool { return p.st == stDone }

// Execute feeds data into the parser. It returns the number of bytes
// consumed from data, and stops consuming — even if data has more bytes —
// the instant headers-complete fires, so the engine can exit its parse
// loop and dispatch (spec.md §4.2). Any bytes after the returned count are
// the start of the request body (or, for a pipelined connection, of
// trailing garbage the engine must not touch until the next request).
func (p *Parser) Execute(data []byte) (consumed int, err error) {
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch p.st {
		case stMethod:
			if c == ' ' {
				p.Method = string(p.methodBuf)
				p.st = stSpacesBeforeURL
				continue
			}
			if !isUpperAlpha(c) {
				return i, ErrMalformed
			}
			p.methodBuf = append(p.methodBuf, c)

		case stSpacesBeforeURL:
			if c == ' ' {
				continue
			}
			p.st = stURL
			i--
			continue

		case stURL:
			if c == ' ' {
				p.st = stSpacesBeforeVersion
				continue
			}
			if c == '\r' || c == '\n' {
				return i, ErrMalformed
			}
			if p.cb.OnURL != nil {
				if cbErr := p.cb.OnURL(data[i : i+1]); cbErr != nil {
					return i, cbErr
				}
			}

		case stSpacesBeforeVersion:
			if c == ' ' {
				continue
			}
			p.st = stVersionH
			i--
			continue

		case stVersionH:
			if c != 'H' {
				return i, ErrUnsupportedVersion
			}
			p.st = stVersionHT
		case stVersionHT:
			if c != 'T' {
				return i, ErrUnsupportedVersion
			}
			p.st = stVersionHTT
		case stVersionHTT:
			if c != 'T' {
				return i, ErrUnsupportedVersion
			}
			p.st = stVersionHTTP
		case stVersionHTTP:
			if c != 'P' {
				return i, ErrUnsupportedVersion
			}
			p.st = stVersionSlash
		case stVersionSlash:
			if c != '/' {
				return i, ErrUnsupportedVersion
			}
			p.st = stVersionMajor
		case stVersionMajor:
			if !isDigit(c) {
				return i, ErrUnsupportedVersion
			}
			p.MajorVersion = int(c - '0')
			p.st = stVersionDot
		case stVersionDot:
			if c != '.' {
				return i, ErrUnsupportedVersion
			}
			p.st = stVersionMinor
		case stVersionMinor:
			if !isDigit(c) {
				return i, ErrUnsupportedVersion
			}
			p.MinorVersion = int(c - '0')
			if p.MajorVersion != 1 || (p.MinorVersion != 0 && p.MinorVersion != 1) {
				return i, ErrUnsupportedVersion
			}
			p.st = stExpectCR
		case stExpectCR:
			if c != '\r' {
				return i, ErrMalformed
			}
			p.st = stExpectLF
		case stExpectLF:
			if c != '\n' {
				return i, ErrMalformed
			}
			p.st = stHeaderFieldStart

		case stHeaderFieldStart:
			if c == '\r' {
				p.st = stHeadersAlmostDone
				continue
			}
			p.headerNameBuf = p.headerNameBuf[:0]
			p.headerIsCL = false
			p.headerIsTE = false
			p.st = stHeaderField
			i--
			continue

		case stHeaderField:
			if c == ':' {
				p.headerIsCL = equalsFoldASCII(p.headerNameBuf, "content-length")
				p.headerIsTE = equalsFoldASCII(p.headerNameBuf, "transfer-encoding")
				p.headerValBuf = p.headerValBuf[:0]
				p.st = stHeaderValueLeadingWS
				continue
			}
			if c == '\r' || c == '\n' {
				return i, ErrMalformed
			}
			p.headerNameBuf = append(p.headerNameBuf, c)
			if p.cb.OnHeaderField != nil {
				if cbErr := p.cb.OnHeaderField(data[i : i+1]); cbErr != nil {
					return i, cbErr
				}
			}

		case stHeaderValueLeadingWS:
			if c == ' ' || c == '\t' {
				continue
			}
			p.st = stHeaderValue
			i--
			continue

		case stHeaderValue:
			if c == '\r' {
				p.st = stHeaderValueCR
				if p.headerIsCL {
					if n, ok := parseUint(p.headerValBuf); ok {
						p.ContentLength = n
					}
				}
				if p.headerIsTE && equalsFoldASCII(p.headerValBuf, "chunked") {
					p.TransferEncodingChunked = true
				}
				continue
			}
			if c == '\n' {
				return i, ErrMalformed
			}
			p.headerValBuf = append(p.headerValBuf, c)
			if p.cb.OnHeaderValue != nil {
				if cbErr := p.cb.OnHeaderValue(data[i : i+1]); cbErr != nil {
					return i, cbErr
				}
			}

		case stHeaderValueCR:
			if c != '\n' {
				return i, ErrMalformed
			}
			p.st = stHeaderFieldStart

		case stHeadersAlmostDone:
			if c != '\n' {
				return i, ErrMalformed
			}
			p.st = stDone
			action := ActionContinue
			var actErr error
			if p.cb.OnHeadersComplete != nil {
				action, actErr = p.cb.OnHeadersComplete()
			}
			if actErr != nil {
				return i + 1, actErr
			}
			if action == ActionSkipBody || action == ActionSkipBodyAndClose {
				p.ContentLength = 0
			}
			return i + 1, nil

		case stDone:
			return i, nil
		}
	}
	return len(data), nil
}

func isUpperAlpha(c byte) bool { return c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool      { return c >= '0' && c <= '9' }

func equalsFoldASCII(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		bc, sc := b[i], s[i]
		if bc >= 'A' && bc <= 'Z' {
			bc += 'a' - 'A'
		}
		if sc >= 'A' && sc <= 'Z' {
			sc += 'a' - 'A'
		}
		if bc != sc {
			return false
		}
	}
	return true
}

func parseUint(b []byte) (int64, bool) {
	b = trimSpace(b)
	if len(b) == 0 {
		return 0, false
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
