// Package workspace manages per-run scratch directories.
//
// Each run gets its own timestamped directory (e.g. run-20251214-122336-1a2b3c4d)
// holding the source checkout and the publish clone, so runs never share an output
// directory. Directories are removed when the run ends unless kept for debugging;
// Prune removes leftovers older than the retention period.
package workspace
