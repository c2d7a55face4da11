package engine

import (
	"testing"

	"github.com/brevis-labs/emberhttpd/config"
	"github.com/brevis-labs/emberhttpd/log"
	"github.com/brevis-labs/emberhttpd/session"
	"github.com/brevis-labs/emberhttpd/tokenizer"
	"github.com/stretchr/testify/assert"
)

func newKeepAliveReq(connHeader string) (*Request, *tokenizer.Parser, *reqAux) {
	cfg := config.DefaultConfig()
	cfg.Logger = log.Discard()
	srv := &Server{cfg: cfg, sessions: session.NewTable(1)}
	slot := &session.Slot{}
	var headers []headerLine
	if connHeader != "" {
		headers = []headerLine{{"Connection", connHeader}}
	}
	aux := &reqAux{headers: headers, slot: slot, respStatus: "200 OK"}
	req := newRequest(srv, slot, aux, MethodGET, "/", 0)
	p := &tokenizer.Parser{MajorVersion: 1, MinorVersion: 1}
	return req, p, aux
}

func TestShouldKeepAliveHTTP11Default(t *testing.T) {
	req, p, aux := newKeepAliveReq("")
	assert.True(t, shouldKeepAlive(p, req, aux))
}

func TestShouldKeepAliveHTTP11ConnectionClose(t *testing.T) {
	req, p, aux := newKeepAliveReq("close")
	assert.False(t, shouldKeepAlive(p, req, aux))
}

func TestShouldKeepAliveHTTP10RequiresExplicit(t *testing.T) {
	req, p, aux := newKeepAliveReq("")
	p.MinorVersion = 0
	assert.False(t, shouldKeepAlive(p, req, aux))
}

func TestShouldKeepAliveHTTP10KeepAliveHeader(t *testing.T) {
	req, p, aux := newKeepAliveReq("keep-alive")
	p.MinorVersion = 0
	assert.True(t, shouldKeepAlive(p, req, aux))
}

func TestShouldKeepAliveFalseOn204(t *testing.T) {
	req, p, aux := newKeepAliveReq("")
	aux.respStatus = "204 No Content"
	assert.False(t, shouldKeepAlive(p, req, aux))
}

func TestShouldKeepAliveFalseOn304(t *testing.T) {
	req, p, aux := newKeepAliveReq("")
	aux.respStatus = "304 Not Modified"
	assert.False(t, shouldKeepAlive(p, req, aux))
}

func TestShouldKeepAliveFalseOnClosedByErr(t *testing.T) {
	req, p, aux := newKeepAliveReq("")
	aux.closedByErr = true
	assert.False(t, shouldKeepAlive(p, req, aux))
}

func TestStatusCodeParsesLeadingDigits(t *testing.T) {
	assert.Equal(t, 404, statusCode("404 Not Found"))
	assert.Equal(t, 200, statusCode(""))
	assert.Equal(t, 200, statusCode("not-a-status"))
}

func TestMapTokenizerError(t *testing.T) {
	assert.Equal(t, 505, mapTokenizerError(tokenizer.ErrUnsupportedVersion))
	assert.Equal(t, 414, mapTokenizerError(errURITooLong))
	assert.Equal(t, 431, mapTokenizerError(errHeaderTooLarge))
	assert.Equal(t, 400, mapTokenizerError(tokenizer.ErrMalformed))
}
