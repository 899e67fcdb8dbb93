// Package handlers implements the trigger server endpoints: the push webhook, run
// status and health.
package handlers
