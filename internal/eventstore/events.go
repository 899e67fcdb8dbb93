package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

// Event type names.
const (
	TypeRunStarted     = "RunStarted"
	TypePhaseCompleted = "PhaseCompleted"
	TypeSitePublished  = "SitePublished"
	TypeRunSucceeded   = "RunSucceeded"
	TypeRunFailed      = "RunFailed"
	TypeRunCanceled    = "RunCanceled"
)

// RunStartedMeta describes what triggered a run.
type RunStartedMeta struct {
	Key     string `json:"key"`
	Ref     string `json:"ref"`
	Commit  string `json:"commit,omitempty"`
	Trigger string `json:"trigger"` // manual, webhook
}

// RunStarted is emitted when a run becomes current in its concurrency group.
type RunStarted struct {
	BaseEvent
	Meta RunStartedMeta
}

// NewRunStarted creates a RunStarted event.
func NewRunStarted(runID string, meta RunStartedMeta) (*RunStarted, error) {
	base, err := newBase(runID, TypeRunStarted, meta)
	if err != nil {
		return nil, err
	}
	return &RunStarted{BaseEvent: base, Meta: meta}, nil
}

// PhaseCompletedData records the outcome of one phase of a run.
type PhaseCompletedData struct {
	Phase      string `json:"phase"`
	Result     string `json:"result"`
	DurationMS int64  `json:"duration_ms"`
}

// PhaseCompleted is emitted after each phase, whatever its outcome.
type PhaseCompleted struct {
	BaseEvent
	Data PhaseCompletedData
}

// NewPhaseCompleted creates a PhaseCompleted event.
func NewPhaseCompleted(runID, phase, result string, duration time.Duration) (*PhaseCompleted, error) {
	data := PhaseCompletedData{Phase: phase, Result: result, DurationMS: duration.Milliseconds()}
	base, err := newBase(runID, TypePhaseCompleted, data)
	if err != nil {
		return nil, err
	}
	return &PhaseCompleted{BaseEvent: base, Data: data}, nil
}

// SitePublishedData describes a publish to the hosting branch.
type SitePublishedData struct {
	Status string `json:"status"` // published, up_to_date
	Branch string `json:"branch"`
	Folder string `json:"folder"`
	Commit string `json:"commit,omitempty"`
	Files  int    `json:"files"`
}

// SitePublished is emitted after the push of a run.
type SitePublished struct {
	BaseEvent
	Data SitePublishedData
}

// NewSitePublished creates a SitePublished event.
func NewSitePublished(runID string, data SitePublishedData) (*SitePublished, error) {
	base, err := newBase(runID, TypeSitePublished, data)
	if err != nil {
		return nil, err
	}
	return &SitePublished{BaseEvent: base, Data: data}, nil
}

// RunSucceededData summarizes a successful run.
type RunSucceededData struct {
	DurationMS    int64             `json:"duration_ms"`
	Artifacts     map[string]string `json:"artifacts,omitempty"` // artifact name -> sha256
	PublishStatus string            `json:"publish_status,omitempty"`
}

// RunSucceeded is emitted when every step of a run completed.
type RunSucceeded struct {
	BaseEvent
	Data RunSucceededData
}

// NewRunSucceeded creates a RunSucceeded event.
func NewRunSucceeded(runID string, data RunSucceededData) (*RunSucceeded, error) {
	base, err := newBase(runID, TypeRunSucceeded, data)
	if err != nil {
		return nil, err
	}
	return &RunSucceeded{BaseEvent: base, Data: data}, nil
}

// RunFailedData describes why a run failed.
type RunFailedData struct {
	Phase    string `json:"phase,omitempty"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

// RunFailed is emitted when a run aborts on a failure.
type RunFailed struct {
	BaseEvent
	Data RunFailedData
}

// NewRunFailed creates a RunFailed event.
func NewRunFailed(runID string, data RunFailedData) (*RunFailed, error) {
	base, err := newBase(runID, TypeRunFailed, data)
	if err != nil {
		return nil, err
	}
	return &RunFailed{BaseEvent: base, Data: data}, nil
}

// RunCanceledData describes a canceled run.
type RunCanceledData struct {
	Phase  string `json:"phase,omitempty"`
	Reason string `json:"reason"`
}

// RunCanceled is emitted when a run stops because it was superseded or interrupted.
type RunCanceled struct {
	BaseEvent
	Data RunCanceledData
}

// NewRunCanceled creates a RunCanceled event.
func NewRunCanceled(runID string, data RunCanceledData) (*RunCanceled, error) {
	base, err := newBase(runID, TypeRunCanceled, data)
	if err != nil {
		return nil, err
	}
	return &RunCanceled{BaseEvent: base, Data: data}, nil
}

func newBase(runID, eventType string, data any) (BaseEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return BaseEvent{}, errors.EventStoreError("failed to marshal "+eventType+" payload").
			WithCause(err).
			WithContext("run_id", runID).
			Build()
	}
	return BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}, nil
}
