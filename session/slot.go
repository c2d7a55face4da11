// Package session implements the fixed-capacity session-slot table of
// spec.md §3/§5: one record per accepted TCP connection, the LRU admission
// bookkeeping of §4.1, and the single-value opaque per-connection context
// cells named by §6's sess_set_ctx/sess_get_ctx.
//
// Grounded on the teacher's internal/session package (momentics/hioload-ws):
// store.go's sharded map becomes a fixed-size array here (spec.md requires
// "at most max_open_sockets session slots... at any moment", an array
// invariant a growing map can't express), and cancel.go's contextStore — a
// many-key map — is narrowed to a single opaque cell, because spec.md's
// user_ctx is one value with one destructor, not a namespaced store.
package session

import (
	"net"

	"github.com/brevis-labs/emberhttpd/pool"
	"github.com/brevis-labs/emberhttpd/tokenizer"
)

// Context is a single opaque per-connection or per-request value with an
// optional destructor, matching spec.md's sess_set_ctx/sess_get_ctx and
// user_ctx/free_ctx fields exactly (see SPEC_FULL.md §3.1 for why this is
// not a namespaced map like the teacher's contextStore).
type Context struct {
	value any
	free  func(any)
	dirty bool
}

// Set installs value and its destructor, freeing any previous value first.
func (c *Context) Set(value any, free func(any)) {
	c.Free()
	c.value = value
	c.free = free
	c.dirty = true
}

// Get returns the current value and whether one is set.
func (c *Context) Get() (any, bool) {
	if c.value == nil {
		return nil, false
	}
	return c.value, true
}

// Free invokes the destructor (if any) and clears the cell.
func (c *Context) Free() {
	if c.free != nil && c.value != nil {
		c.free(c.value)
	}
	c.value = nil
	c.free = nil
	c.dirty = false
}

// Dirty reports whether Set has been called since the cell was last cleared
// by Free or Take. Used by a staging cell to know whether it holds a write
// worth committing (engine.Request's ignore_sess_ctx_changes support).
func (c *Context) Dirty() bool { return c.dirty }

// Take hands the value/destructor pair to the caller, who takes over
// ownership, without running the destructor, and clears the cell.
func (c *Context) Take() (value any, free func(any)) {
	value, free = c.value, c.free
	c.value, c.free, c.dirty = nil, nil, false
	return value, free
}

// freeFD is the slot lifecycle fd sentinel (spec.md §3 "fd sentinel −1
// when free").
const freeFD = -1

// Slot is one session-table record (spec.md §3 "Session slot").
type Slot struct {
	FD int

	Conn net.Conn

	// LRUCounter is stamped with the engine's monotonic LRU clock every
	// time bytes are sent or received on this session (spec.md §4.1).
	LRUCounter uint64
	// LRUIdle is true only between requests, with no partial parse state —
	// the sole condition under which a slot is an eviction candidate
	// (spec.md §4.1, §9 "LRU flag semantics").
	LRUIdle bool

	// PendingData holds bytes already read from the socket but not yet
	// consumed by the tokenizer or WS frame decoder (spec.md §3).
	PendingData []byte

	UserCtx Context
	// TransportCtx is the context cell for spec.md §3's transport function
	// triple {send, recv, pending} — the per-session override point for
	// non-default I/O (e.g. a TLS wrapper), reserved for that purpose only.
	TransportCtx Context

	// ParserState stashes the engine's in-flight request-line/header
	// accumulator (an *engine.parseState, opaque here to avoid an import
	// cycle) across the tokenizer callbacks that populate it. Deliberately
	// not TransportCtx: that cell is spec.md's named transport-override slot,
	// not a place for the engine's own bookkeeping.
	ParserState any

	IsWebSocket     bool
	IsAsync         bool
	HandleWSControl bool
	// WSSubprotocol is the negotiated Sec-WebSocket-Protocol value, if any.
	WSSubprotocol string

	Parser *tokenizer.Parser

	// ReadBuf is the fixed-size buffer every socket read lands in (spec.md §3
	// "a single bounded scratch buffer"); checked out once at accept and
	// released back to the pool on Reset, never reallocated per read.
	ReadBuf *pool.Buffer

	// RemoteAddr is cached at accept time for logging/diagnostics.
	RemoteAddr string
}

// Reset clears all per-request and per-connection state, returning the slot
// to Free (spec.md §3 lifecycle "Closing -> Free ... zeroes the slot").
func (s *Slot) Reset() {
	s.UserCtx.Free()
	s.TransportCtx.Free()
	s.ParserState = nil
	if s.ReadBuf != nil {
		s.ReadBuf.Release()
		s.ReadBuf = nil
	}
	*s = Slot{FD: freeFD}
}

// IsFree reports whether the slot holds no connection.
func (s *Slot) IsFree() bool { return s.FD == freeFD }
