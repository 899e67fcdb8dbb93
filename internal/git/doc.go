// Package git checks out the source of a run.
//
// Every run gets a fresh clone of the pushed ref in its own workspace, optionally
// pinned to the pushed commit. Errors are classified so that authentication, missing
// repositories and network failures surface with distinct categories.
package git
