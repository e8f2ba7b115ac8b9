package domain

import (
	"errors"
	"fmt"
)

// ErrNoRelevantContent reports that retrieval found nothing for a query.
// It is a normal terminal outcome, not a failure: the shell should inform
// the user and skip the generation call.
var ErrNoRelevantContent = errors.New("no relevant content found")

// ErrNotConfigured reports that the embedding and generation clients have
// not been constructed yet. Callers must supply a credential first.
var ErrNotConfigured = errors.New("embedding and generation clients are not configured")

// ConfigError reports invalid parameters or a missing credential. The
// caller must fix the configuration before retrying; it is never retried
// automatically.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// ServiceError reports a failed remote call to the embedding or
// generation service. Transient causes may be retried by the caller; the
// core performs no automatic retries.
type ServiceError struct {
	Service string // "embedding" or "generation"
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// RetrievalError reports that embedding or nearest-neighbour lookup of a
// query failed. The conversation history is never mutated when it occurs.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieval: " + e.Err.Error() }

func (e *RetrievalError) Unwrap() error { return e.Err }

// IngestError reports an ingestion batch that produced nothing usable.
// Attempted and Added let the caller report partial progress.
type IngestError struct {
	Attempted int
	Added     int
	Err       error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest: %v (%d/%d chunks added)", e.Err, e.Added, e.Attempted)
	}
	return fmt.Sprintf("ingest failed: %d/%d chunks added", e.Added, e.Attempted)
}

func (e *IngestError) Unwrap() error { return e.Err }
