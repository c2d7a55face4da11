// Package httpd is the public API surface of spec.md §6: start/stop,
// handler registration, client-list query, session context, and queued
// work. It is a thin facade over package engine, following the teacher's
// split between a low-level engine and a small public-facing entry point
// (momentics/hioload-ws's facade package wraps lowlevel/server the same
// way).
package httpd

import (
	"net"

	"github.com/brevis-labs/emberhttpd/config"
	"github.com/brevis-labs/emberhttpd/engine"
)

// Re-exported types so callers never need to import package engine
// directly.
type (
	Request      = engine.Request
	HandlerFunc  = engine.HandlerFunc
	HandlerEntry = engine.HandlerEntry
	Method       = engine.Method
	FdKind       = engine.FdKind
)

const (
	MethodGET     = engine.MethodGET
	MethodHEAD    = engine.MethodHEAD
	MethodPOST    = engine.MethodPOST
	MethodPUT     = engine.MethodPUT
	MethodDELETE  = engine.MethodDELETE
	MethodOPTIONS = engine.MethodOPTIONS
	MethodPATCH   = engine.MethodPATCH

	FdInvalid   = engine.FdInvalid
	FdHTTP      = engine.FdHTTP
	FdWebSocket = engine.FdWebSocket
)

// Server is the started instance handle (spec.md §3's "server instance").
type Server struct {
	eng *engine.Server
}

// Start implements spec.md §6's start: build a config from opts and spawn
// the engine.
func Start(opts ...config.Option) (*Server, error) {
	cfg := config.Apply(opts...)
	eng, err := engine.Start(cfg)
	if err != nil {
		return nil, err
	}
	return &Server{eng: eng}, nil
}

// Stop implements spec.md §6's stop.
func (s *Server) Stop() error { return s.eng.Stop() }

// Addr returns the bound listener address (useful when ServerPort is 0).
func (s *Server) Addr() net.Addr { return s.eng.Addr() }

// RegisterURIHandler implements spec.md §6's register_uri_handler.
func (s *Server) RegisterURIHandler(e HandlerEntry) error {
	return s.eng.RegisterURIHandler(e)
}

// UnregisterURIHandler implements spec.md §6's unregister_uri_handler.
func (s *Server) UnregisterURIHandler(uriPattern string, method Method) error {
	return s.eng.UnregisterURIHandler(uriPattern, method)
}

// UnregisterURI implements spec.md §6's unregister_uri.
func (s *Server) UnregisterURI(uriPattern string) error {
	return s.eng.UnregisterURI(uriPattern)
}

// RegisterErrHandler implements spec.md §6's register_err_handler.
func (s *Server) RegisterErrHandler(code int, fn HandlerFunc) error {
	return s.eng.RegisterErrHandler(code, fn)
}

// GetClientList implements spec.md §6's get_client_list.
func (s *Server) GetClientList(out []int) int { return s.eng.GetClientList(out) }

// FdInfo implements spec.md §4.6's ws_get_fd_info.
func (s *Server) FdInfo(fd int) FdKind { return s.eng.FdInfo(fd) }

// QueueWork implements spec.md §6's queue_work: the sole way external
// goroutines may mutate engine/session state (spec.md §5).
func (s *Server) QueueWork(fn func()) error { return s.eng.QueueWork(fn) }
