// Package sessioncache persists the evaluated token sequence together with
// the evaluator state, so a later run can skip re-evaluating the longest
// common prefix of its prompt.
package sessioncache

import "errors"

var (
	// ErrCorrupt indicates a cache file that exists but cannot be decoded.
	// The run must not continue; the user deletes the file.
	ErrCorrupt = errors.New("sessioncache: corrupt cache file")

	errIncompressible = errors.New("sessioncache: data is incompressible")
)
