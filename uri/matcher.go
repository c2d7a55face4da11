// Package uri implements the literal and wildcard URI matching primitives
// of spec.md §4.3: a pattern alphabet of `*`, `?`, and `?*` on top of literal
// equality, matched against the path component of an incoming request.
//
// The teacher's routing layer (highlevel/server.go, momentics/hioload-ws)
// compiles every registered pattern to a regexp.Regexp; that approach cannot
// express spec.md's specific `?` semantics (matches both "/api" and "/api/"
// only at the tail) without per-pattern regex synthesis tricks, so this
// package is a fresh, direct implementation of the wildcard alphabet instead
// — the one piece of the router grounded on the teacher's overall "pattern
// compiled once, matched per request" shape rather than its literal code.
package uri

// MatchFn is the signature a custom matcher must implement to supersede the
// built-in matcher (spec.md §4.3 "Applications may supply a custom match
// function").
type MatchFn func(pattern, uri string) bool

// Match reports whether uri matches pattern using the built-in rules:
//   - a pattern with none of '*' or '?' is a literal equality check
//   - '*' matches any tail, including the empty tail
//   - a trailing '?' makes the character just before it optional
//     ("/api/?" matches "/api" and "/api/", not "/api/x")
//   - a trailing "?*" matches the empty tail, a single character, or any
//     longer tail
//
// For the '*' and "?*" tails, nothing in uri past the literal prefix affects
// the outcome; a trailing '?' compares the whole uri, and a meta-character
// anywhere else makes the pattern a literal.
func Match(pattern, uri string) bool {
	if !hasMeta(pattern) {
		return pattern == uri
	}

	// Find the wildcard suffix, if any.
	if n := len(pattern); n >= 2 && pattern[n-2] == '?' && pattern[n-1] == '*' {
		prefix := pattern[:n-2]
		if len(uri) < len(prefix) || uri[:len(prefix)] != prefix {
			return false
		}
		return true // empty tail, one char, or any longer tail: all accepted once the prefix matches
	}
	if n := len(pattern); n >= 1 && pattern[n-1] == '?' {
		// The char immediately preceding '?' is optional: pattern "/api/?"
		// matches both "/api" (zero occurrences) and "/api/" (one
		// occurrence), per spec.md §4.3's worked example.
		withChar := pattern[:n-1]  // e.g. "/api/"
		without := ""
		if n >= 2 {
			without = pattern[:n-2] // e.g. "/api"
		}
		return uri == withChar || uri == without
	}
	if n := len(pattern); n >= 1 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(uri) >= len(prefix) && uri[:len(prefix)] == prefix
	}

	// A meta-character appears somewhere other than the recognized tail
	// positions: fall back to literal comparison, since spec.md only
	// defines '*', '?', and '?*' as tail markers.
	return pattern == uri
}

func hasMeta(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' || pattern[i] == '?' {
			return true
		}
	}
	return false
}
