package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"

	"exam-app/internal/exam"
)

const maxBodyBytes = 1 << 20

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exam.ErrTestNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "test not found"})
	case errors.Is(err, exam.ErrAttemptNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "attempt not found"})
	case errors.Is(err, exam.ErrAttemptCompleted):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "attempt already completed"})
	case errors.Is(err, exam.ErrAttemptLimitReached):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "attempt limit reached"})
	case errors.Is(err, exam.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, exam.ErrInvalidAnswer), errors.Is(err, exam.ErrInvalidPatch):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, exam.ErrInvalidStudent):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "student id is required"})
	case errors.Is(err, exam.ErrAuthRequired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "request failed"})
	}
}

func toAttemptResponse(attempt exam.Attempt) attemptResponse {
	var response attemptResponse
	if err := copier.Copy(&response, &attempt); err != nil {
		log.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("attempt response copy failed")
	}
	if response.Answers == nil {
		response.Answers = map[string]exam.Answer{}
	}
	for _, answer := range attempt.Answers {
		if answer.IsSet() {
			response.AnsweredCount++
		}
	}
	return response
}

func toAttemptResponses(attempts []exam.Attempt) []attemptResponse {
	response := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		response = append(response, toAttemptResponse(attempt))
	}
	return response
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func parseIntParam(r *http.Request, key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
