package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"exam-app/internal/auth"
	"exam-app/internal/exam"
)

const (
	defaultListLimit        = 50
	defaultPracticeQuestion = 10
)

func (a *API) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (a *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if a.tokens == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "auth service unavailable"})
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	identity, err := a.creds.Authenticate(req.Username, req.Password, req.Name)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		return
	}
	token, expiresAt, err := a.tokens.Issue(identity)
	if err != nil {
		log.Error().Err(err).Msg("token issue failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "login failed"})
		return
	}

	log.Info().Str("user", identity.ID).Str("role", identity.Role).Msg("login")
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  identityResponse{ID: identity.ID, Name: identity.Name, Role: identity.Role},
	})
}

func (a *API) HandleListTests(w http.ResponseWriter, r *http.Request) {
	if !a.serviceReady(w) {
		return
	}
	limit, err := parseIntParam(r, "limit", defaultListLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	tests, err := a.service.ListTests(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if tests == nil {
		tests = []exam.TestSummary{}
	}
	writeJSON(w, http.StatusOK, testsResponse{Tests: tests})
}

// HandleGetTest returns the full test including correct options. The client
// grades locally before finalizing.
func (a *API) HandleGetTest(w http.ResponseWriter, r *http.Request) {
	if !a.serviceReady(w) {
		return
	}
	test, err := a.service.GetTest(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func (a *API) HandleCreatePracticeTest(w http.ResponseWriter, r *http.Request) {
	if !a.serviceReady(w) {
		return
	}

	var req practiceRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	if req.QuestionCount < 0 || req.TimeLimitMinutes < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question_count and time_limit_minutes must be non-negative"})
		return
	}
	if req.QuestionCount == 0 {
		req.QuestionCount = defaultPracticeQuestion
	}

	test, err := a.service.CreatePracticeTest(r.Context(), req.Title, req.QuestionCount, req.TimeLimitMinutes)
	if err != nil {
		log.Error().Err(err).Msg("practice test creation failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "failed to fetch questions"})
		return
	}
	writeJSON(w, http.StatusCreated, test.Summary())
}

func (a *API) HandleCreateAttempt(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.student(w, r)
	if !ok {
		return
	}

	var req createAttemptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	testID := strings.TrimSpace(req.TestID)
	if testID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "test_id is required"})
		return
	}

	attempt, created, err := a.service.CreateAttempt(r.Context(), testID, exam.Student{ID: identity.ID, Name: identity.Name})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := toAttemptResponse(attempt)
	response.Created = created
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, response)
}

func (a *API) HandleActiveAttempt(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.student(w, r)
	if !ok {
		return
	}
	testID := strings.TrimSpace(r.URL.Query().Get("test_id"))
	if testID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "test_id is required"})
		return
	}

	attempt, err := a.service.FetchExistingAttempt(r.Context(), testID, identity.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

func (a *API) HandleGetAttempt(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.student(w, r)
	if !ok {
		return
	}

	attemptID := chi.URLParam(r, "attemptID")
	var (
		attempt exam.Attempt
		err     error
	)
	if identity.IsAdmin() {
		attempt, err = a.service.GetAttempt(r.Context(), attemptID)
	} else {
		attempt, err = a.service.GetOwnedAttempt(r.Context(), attemptID, identity.ID)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

func (a *API) HandleUpdateAttempt(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.student(w, r)
	if !ok {
		return
	}

	var patch exam.AttemptPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if patch.Empty() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "patch has no fields"})
		return
	}

	attempt, err := a.service.UpdateAttempt(r.Context(), chi.URLParam(r, "attemptID"), identity.ID, patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

func (a *API) HandleFinalizeAttempt(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.student(w, r)
	if !ok {
		return
	}

	var final exam.Finalization
	if err := decodeJSON(w, r, &final); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	attempt, err := a.service.FinalizeAttempt(r.Context(), chi.URLParam(r, "attemptID"), identity.ID, final)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

func (a *API) HandleListAttempts(w http.ResponseWriter, r *http.Request) {
	if !a.serviceReady(w) {
		return
	}
	limit, err := parseIntParam(r, "limit", defaultListLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	offset, err := parseIntParam(r, "offset", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	query := r.URL.Query()
	attempts, err := a.service.ListAttempts(r.Context(), exam.AttemptFilter{
		TestID:    strings.TrimSpace(query.Get("test_id")),
		StudentID: strings.TrimSpace(query.Get("student_id")),
		Status:    exam.Status(strings.TrimSpace(query.Get("status"))),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptsResponse{Attempts: toAttemptResponses(attempts)})
}

func (a *API) HandleCleanupAttempts(w http.ResponseWriter, r *http.Request) {
	if !a.serviceReady(w) {
		return
	}
	deleted, err := a.service.CleanupStaleAttempts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	log.Info().Int64("deleted", deleted).Msg("stale attempts removed")
	writeJSON(w, http.StatusOK, cleanupResponse{Deleted: deleted})
}

func (a *API) serviceReady(w http.ResponseWriter) bool {
	if a.service == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "exam service unavailable"})
		return false
	}
	return true
}

func (a *API) student(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	if !a.serviceReady(w) {
		return auth.Identity{}, false
	}
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok || strings.TrimSpace(identity.ID) == "" {
		writeServiceError(w, exam.ErrAuthRequired)
		return auth.Identity{}, false
	}
	return identity, true
}
