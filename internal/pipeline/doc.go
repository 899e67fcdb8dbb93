// Package pipeline executes runs: it checks out the pushed commit into a fresh
// workspace, provisions the toolchain, runs the build phases and publishes the output
// directory, while the concurrency registry decides which run may deploy.
//
// Cancellation is observed between steps and between build phases only. A step that
// has started always completes, and a publish that has started is never interrupted.
package pipeline
