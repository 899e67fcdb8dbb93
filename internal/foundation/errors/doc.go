// Package errors provides the classified error primitives used across pagesdeploy.
//
// A ClassifiedError carries a category, a severity and structured context. Run
// failures are classified into the pipeline taxonomy (provisioning, build, publish,
// canceled) so the CLI and the trigger server can map them to exit codes and HTTP
// statuses without string matching.
//
// Example usage:
//
//	err := errors.BuildError("build command failed").
//		WithCause(execErr).
//		WithContext("phase", "final_build").
//		Build()
package errors
