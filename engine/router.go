package engine

import (
	"github.com/brevis-labs/emberhttpd/emberr"
	"github.com/brevis-labs/emberhttpd/uri"
)

// HandlerFunc is the handler signature of spec.md §3 ("a function
// (request) -> status"): it stages and sends a response via methods on
// Request and returns an error only for the "handler failed without
// sending a response" case (spec.md §7's 500 mapping).
type HandlerFunc func(*Request) error

// HandlerEntry is spec.md §3's URI handler table row.
type HandlerEntry struct {
	URI                   string
	Method                Method
	Handler               HandlerFunc
	UserCtx               any
	IsWebSocket           bool
	HandleWSControlFrames bool
	SupportedSubprotocol  string
}

// routerTable is the fixed-capacity, registration-ordered handler table of
// spec.md §3/§4.3. Grounded on the teacher's handler_chain.go
// (momentics/hioload-ws), which likewise keeps handlers in a slice scanned
// in registration order rather than a map, because match order is
// observable behavior here (spec.md: "first match wins... wildcard
// patterns are tried in registration order").
type routerTable struct {
	entries []HandlerEntry
	maxLen  int
	matchFn uri.MatchFn
}

func newRouterTable(maxLen int, matchFn uri.MatchFn) *routerTable {
	if matchFn == nil {
		matchFn = uri.Match
	}
	return &routerTable{maxLen: maxLen, matchFn: matchFn}
}

// Register implements spec.md §6's register_uri_handler contract.
func (rt *routerTable) Register(e HandlerEntry) error {
	if e.URI == "" || e.Handler == nil {
		return emberr.New(emberr.InvalidArg, "uri and handler are required")
	}
	for _, existing := range rt.entries {
		if existing.URI == e.URI && existing.Method == e.Method {
			return emberr.New(emberr.HandlerExists, "duplicate uri+method registration")
		}
	}
	if len(rt.entries) >= rt.maxLen {
		return emberr.New(emberr.HandlersFull, "handler table is full")
	}
	rt.entries = append(rt.entries, e)
	return nil
}

// Unregister implements unregister_uri_handler: remove one (uri, method)
// entry.
func (rt *routerTable) Unregister(pattern string, method Method) error {
	for i, e := range rt.entries {
		if e.URI == pattern && e.Method == method {
			rt.entries = append(rt.entries[:i], rt.entries[i+1:]...)
			return nil
		}
	}
	return emberr.New(emberr.NotFound, "no such uri+method registration")
}

// UnregisterURI implements unregister_uri: remove every method registered
// for pattern.
func (rt *routerTable) UnregisterURI(pattern string) error {
	found := false
	out := rt.entries[:0]
	for _, e := range rt.entries {
		if e.URI == pattern {
			found = true
			continue
		}
		out = append(out, e)
	}
	rt.entries = out
	if !found {
		return emberr.New(emberr.NotFound, "no registrations for uri")
	}
	return nil
}

// matchResult distinguishes the three outcomes spec.md §4.3 names.
type matchResult int

const (
	matchOK matchResult = iota
	matchMethodMismatch
	matchNone
)

// Lookup implements spec.md §4.3's scan: first entry whose pattern matches
// and whose method equals req wins; a pattern-only match records 405,
// otherwise 404.
func (rt *routerTable) Lookup(reqURI string, method Method) (*HandlerEntry, matchResult) {
	path := reqURI
	if i := indexByte(reqURI, '?'); i >= 0 {
		path = reqURI[:i]
	}
	sawPatternMatch := false
	for i := range rt.entries {
		e := &rt.entries[i]
		if !rt.matchFn(e.URI, path) {
			continue
		}
		sawPatternMatch = true
		if e.Method == method {
			return e, matchOK
		}
	}
	if sawPatternMatch {
		return nil, matchMethodMismatch
	}
	return nil, matchNone
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
