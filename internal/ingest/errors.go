package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("invalid ingestion request")

	// ErrDuplicateIngestion is returned when records already exist for the
	// document identity and update_collection is not set.
	ErrDuplicateIngestion = errors.New("document already ingested")

	// ErrAllChunksFailed is returned when no chunk produced pairs.
	ErrAllChunksFailed = errors.New("every chunk failed")

	// ErrAllRecordsFailed is returned when no pair could be embedded.
	ErrAllRecordsFailed = errors.New("every record failed to embed")
)

// StageError is the terminal Failed(stage, cause) state of a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingestion failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
