// Package http exposes the REST surface of the quiz platform: quiz CRUD,
// the student attempt flow (start, answer upsert, finalize) and teacher
// manual grading.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/RozzleCort/edu-platform/internal/quiz"
)

type detailResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeStoreErr maps store errors onto the wire: 404 for missing entities,
// 409 + machine code for the attempt cap, field-message maps for validation.
func writeStoreErr(w http.ResponseWriter, err error) {
	var verr quiz.ValidationError
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		writeJSON(w, http.StatusNotFound, detailResponse{Detail: "not found"})
	case errors.Is(err, quiz.ErrAttemptLimit):
		writeJSON(w, http.StatusConflict, detailResponse{
			Detail: "you have reached the maximum number of attempts for this quiz",
			Code:   "attempt_limit_exceeded",
		})
	case errors.Is(err, quiz.ErrAttemptClosed):
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "this attempt is already submitted or timed out"})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, verr)
	default:
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: err.Error()})
	}
}
