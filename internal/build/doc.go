// Package build runs the multi-phase build of a single-page application into one
// output directory.
//
// The sequence produces two variants of index.html: a plain bundle (base_build) and a
// search-enabled bundle (final_build), with a host-native prebuild writing the search
// index in between. Each variant is captured as a named artifact by SHA-256 digest.
// The fallback page 404.html is first snapshotted from the plain bundle and finally
// synchronized with the search-enabled one, so that at hand-off index.html and 404.html
// are byte-identical and unknown routes load the search-enabled application.
//
// Cancellation is observed only at phase boundaries: a running phase completes, but
// its output never starts another phase.
package build
