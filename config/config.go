// Package config holds the immutable-after-start server configuration
// described in spec.md §6, built the way the teacher builds server.Config:
// a struct with sensible defaults plus functional Option overrides
// (see server/options.go in the retrieval pack's momentics/hioload-ws).
package config

import (
	"time"

	"github.com/brevis-labs/emberhttpd/log"
)

// Config is a snapshot taken at Start and never mutated afterward.
type Config struct {
	ServerPort     int // 0 = let OS assign
	ServerPortIPv6 int

	MaxOpenSockets  int
	MaxURIHandlers  int
	MaxRespHeaders  int
	BacklogConn     int
	LRUPurgeEnable  bool

	RecvWaitTimeout time.Duration
	SendWaitTimeout time.Duration

	MaxURILen    int
	MaxReqHdrLen int
	ScratchSize  int // per-session scratch buffer capacity (§3)

	KeepAliveEnable  bool
	KeepAliveIdle    time.Duration
	KeepAliveInterval time.Duration
	KeepAliveCount   int

	EnableSOLinger bool
	LingerTimeout  time.Duration

	// GlobalUserCtx is an opaque value the server holds for its lifetime;
	// Stop passes it to FreeGlobalCtx. It is not passed to OpenFn/CloseFn and
	// no handler-facing accessor returns it.
	GlobalUserCtx  any
	FreeGlobalCtx  func(any)

	// OpenFn is invoked after a new fd is installed into a session slot but
	// before any bytes are parsed; returning an error closes the connection
	// immediately. CloseFn is invoked right before the slot is released.
	OpenFn  func(fd int) error
	CloseFn func(fd int)

	// UriMatchFn, if set, supersedes the built-in literal/wildcard matcher
	// (spec.md §4.3).
	UriMatchFn func(pattern, uri string) bool

	Logger log.Logger
}

// DefaultConfig mirrors the teacher's DefaultConfig() factory, populating
// every field with the values spec.md names as ESP-IDF-compatible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerPort:        80,
		ServerPortIPv6:    -1,
		MaxOpenSockets:    7,
		MaxURIHandlers:    8,
		MaxRespHeaders:    8,
		BacklogConn:       5,
		LRUPurgeEnable:    false,
		RecvWaitTimeout:   5 * time.Second,
		SendWaitTimeout:   5 * time.Second,
		MaxURILen:         512,
		MaxReqHdrLen:      1024,
		ScratchSize:       1024,
		KeepAliveEnable:   false,
		KeepAliveIdle:     5 * time.Second,
		KeepAliveInterval: 5 * time.Second,
		KeepAliveCount:    3,
		EnableSOLinger:    false,
		LingerTimeout:     0,
		Logger:            log.Discard(),
	}
}

// Option mutates a Config at construction time, following the teacher's
// ServerOption functional-options pattern (server/options.go).
type Option func(*Config)

func WithPort(port int) Option              { return func(c *Config) { c.ServerPort = port } }
func WithMaxOpenSockets(n int) Option        { return func(c *Config) { c.MaxOpenSockets = n } }
func WithMaxURIHandlers(n int) Option        { return func(c *Config) { c.MaxURIHandlers = n } }
func WithLRUPurge(enable bool) Option        { return func(c *Config) { c.LRUPurgeEnable = enable } }
func WithRecvTimeout(d time.Duration) Option { return func(c *Config) { c.RecvWaitTimeout = d } }
func WithSendTimeout(d time.Duration) Option { return func(c *Config) { c.SendWaitTimeout = d } }
func WithScratchSize(n int) Option           { return func(c *Config) { c.ScratchSize = n } }
func WithMaxURILen(n int) Option             { return func(c *Config) { c.MaxURILen = n } }
func WithMaxReqHdrLen(n int) Option          { return func(c *Config) { c.MaxReqHdrLen = n } }
func WithLogger(l log.Logger) Option         { return func(c *Config) { c.Logger = l } }
func WithOpenFn(fn func(fd int) error) Option { return func(c *Config) { c.OpenFn = fn } }
func WithCloseFn(fn func(fd int)) Option     { return func(c *Config) { c.CloseFn = fn } }
func WithUriMatchFn(fn func(pattern, uri string) bool) Option {
	return func(c *Config) { c.UriMatchFn = fn }
}

// Apply builds a Config from DefaultConfig with the given overrides.
func Apply(opts ...Option) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
	return c
}
