// Package concurrency tracks one current run per concurrency group.
//
// A group is identified by a Key (workflow identity and ref). Starting a run in a
// group that already has a running run cancels the older one, unless the registry
// queues instead. Deploys are serialized per group and refused for runs that are no
// longer current, so a superseded run can never publish after it was canceled.
package concurrency
