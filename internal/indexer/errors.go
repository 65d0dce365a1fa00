package indexer

import (
	"errors"
	"fmt"
)

// Error codes carried by StudyIndexerError for operator diagnosis.
const (
	CodeInternal           = "INTERNAL_ERROR"
	CodeMLNotAvailable     = "ML_NOT_AVAILABLE"
	CodeVectorStoreDown    = "VECTOR_STORE_NOT_AVAILABLE"
	CodeTrackerUnavailable = "TRACKER_NOT_AVAILABLE"
)

// StudyIndexerError is the base error for infrastructure failures inside the
// indexing core. Code distinguishes which dependency failed.
type StudyIndexerError struct {
	Code string
	Msg  string
	Err  error
}

func (e *StudyIndexerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *StudyIndexerError) Unwrap() error { return e.Err }

func newIndexerError(code, msg string, err error) *StudyIndexerError {
	return &StudyIndexerError{Code: code, Msg: msg, Err: err}
}

// Upload-time validation failures. No side effects are persisted.
var (
	ErrInvalidFileType  = errors.New("unsupported file type")
	ErrFileSizeTooLarge = errors.New("file exceeds maximum upload size")
)

// ErrInvalidDocument covers unsupported extensions and malformed metadata
// discovered after upload acceptance; the document is marked failed.
var ErrInvalidDocument = errors.New("invalid document")

// ErrDocumentNotFound is returned for operations referencing an unknown id.
var ErrDocumentNotFound = errors.New("document not found")

// ErrIndexingInProgress means another index/reindex holds the per-document
// lease. Callers may retry once the lease expires.
var ErrIndexingInProgress = errors.New("indexing already in progress")

// ProcessingError wraps a loader/parser failure; the message is retained
// verbatim on the status record for diagnostics.
type ProcessingError struct {
	DocumentID string
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process document %s: %v", e.DocumentID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// SearchError wraps any failure in the search pipeline.
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }
