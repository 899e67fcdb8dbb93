package eventstore

import (
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

// Sentinels for event store failures. Wrapped errors carry the cause and match
// these with errors.Is.
var (
	ErrDatabaseOpenFailed     = errors.EventStoreError("could not open event store database").Build()
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize event store schema").Build()
	ErrEventAppendFailed      = errors.EventStoreError("failed to append event to store").Build()
	ErrEventQueryFailed       = errors.EventStoreError("failed to query events from store").Build()
	ErrMarshalPayloadFailed   = errors.EventStoreError("failed to marshal event payload").Build()
)

// wrap attaches cause to a sentinel while keeping the sentinel's category and message.
func wrap(sentinel *errors.ClassifiedError, cause error) error {
	return errors.WrapError(cause, sentinel.Category(), sentinel.Message()).Build()
}
