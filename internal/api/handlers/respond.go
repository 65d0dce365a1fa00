package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/studyhub-platform/studyindexer/internal/indexer"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   errorBody `json:"error"`
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorEnvelope{
		Message: msg,
		Error:   errorBody{Code: code},
	})
}

func decodePatch(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || len(patch) == 0 {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a non-empty JSON object")
		return nil, false
	}
	return patch, true
}

// writeError maps core errors onto HTTP statuses. Validation failures are
// the caller's fault; infrastructure failures are 500 with a code naming
// the dependency that broke.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, indexer.ErrDocumentNotFound):
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, indexer.ErrFileSizeTooLarge):
		writeErrorCode(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, indexer.ErrInvalidFileType):
		writeErrorCode(w, http.StatusBadRequest, "INVALID_FILE_TYPE", err.Error())
	case errors.Is(err, indexer.ErrInvalidDocument):
		writeErrorCode(w, http.StatusBadRequest, "INVALID_DOCUMENT", err.Error())
	case errors.Is(err, indexer.ErrIndexingInProgress):
		writeErrorCode(w, http.StatusConflict, "INDEXING_IN_PROGRESS", err.Error())
	default:
		var ierr *indexer.StudyIndexerError
		if errors.As(err, &ierr) {
			writeErrorCode(w, http.StatusInternalServerError, ierr.Code, "internal error")
			return
		}
		writeErrorCode(w, http.StatusInternalServerError, indexer.CodeInternal, "internal error")
	}
}
