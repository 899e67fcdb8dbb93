package build

import (
	"context"
	"fmt"
)

// Phase is a discrete step of the build sequence.
type Phase func(ctx context.Context, st *state) error

// PhaseName identifies a build phase.
type PhaseName string

// Build phases, in execution order.
const (
	PhaseBaseBuild        PhaseName = "base_build"
	PhasePrebuildIndex    PhaseName = "prebuild_index"
	PhaseFallbackSnapshot PhaseName = "fallback_snapshot"
	PhaseFinalBuild       PhaseName = "final_build"
	PhaseFallbackSync     PhaseName = "fallback_sync"
)

// Phases lists every phase in execution order.
var Phases = []PhaseName{
	PhaseBaseBuild,
	PhasePrebuildIndex,
	PhaseFallbackSnapshot,
	PhaseFinalBuild,
	PhaseFallbackSync,
}

// PhaseErrorKind classifies how a phase ended.
type PhaseErrorKind string

const (
	PhaseErrorFatal    PhaseErrorKind = "fatal"    // Run must abort.
	PhaseErrorCanceled PhaseErrorKind = "canceled" // Context cancellation before the phase started.
)

// PhaseError ties a failure to the phase it happened in.
type PhaseError struct {
	Kind  PhaseErrorKind
	Phase PhaseName
	Err   error
}

func (e *PhaseError) Error() string { return fmt.Sprintf("%s phase %s: %v", e.Kind, e.Phase, e.Err) }
func (e *PhaseError) Unwrap() error { return e.Err }

// PhaseResult is the outcome of a single phase.
type PhaseResult string

const (
	PhaseResultSuccess  PhaseResult = "success"
	PhaseResultFatal    PhaseResult = "fatal"
	PhaseResultCanceled PhaseResult = "canceled"
)

type phaseDef struct {
	Name PhaseName
	Fn   Phase
}
