package engine

import "errors"

// Sentinel errors returned by parser callbacks, translated to spec.md §7's
// HTTP status taxonomy at the dispatch site (they never escape the engine
// package as-is).
var (
	errURITooLong     = errors.New("engine: uri exceeds max_uri_len")
	errHeaderTooLarge  = errors.New("engine: header scratch exceeds capacity")
)
