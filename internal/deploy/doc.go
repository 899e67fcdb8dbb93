// Package deploy publishes a built output directory to a static hosting branch.
//
// Publishing is a set-union merge: every file of the output directory is written
// into the target folder of the hosting branch, overwriting files with the same path,
// and nothing already on the branch is removed. The branch is created as an orphan
// when it does not exist yet. The push is the only externally visible step, so a
// failed publish leaves the hosting branch unchanged.
package deploy
