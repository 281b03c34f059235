package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"exam-app/internal/auth"
	"exam-app/internal/exam"
	"exam-app/internal/exam/sqlstore"
	"exam-app/internal/opentdb"
)

type testServer struct {
	handler http.Handler
	service *exam.Service
	tokens  *auth.TokenService
}

func newTestServer(t *testing.T, fetcher exam.QuestionsFetcher) *testServer {
	t.Helper()

	store, err := sqlstore.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	service := exam.NewService(store, store, fetcher, exam.Options{MaxCompletedAttempts: 1})
	if err := service.SaveTest(context.Background(), exam.Test{
		ID:               "t1",
		Title:            "Sample",
		TimeLimitMinutes: 10,
		Questions: []exam.Question{
			{ID: "q1", Prompt: "one", Correct: exam.AnswerA, Marks: 1, Options: []exam.Option{{Letter: "A", Text: "a"}, {Letter: "B", Text: "b"}}},
			{ID: "q2", Prompt: "two", Correct: exam.AnswerB, Marks: 1, Options: []exam.Option{{Letter: "A", Text: "a"}, {Letter: "B", Text: "b"}}},
		},
	}); err != nil {
		t.Fatalf("SaveTest failed: %v", err)
	}

	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	tokens := auth.NewTokenService("test-secret", time.Hour)
	api := NewAPI(service, tokens, auth.Credentials{AdminUser: "admin", AdminPassHash: hash, AllowDevLogin: true})

	return &testServer{handler: NewRouter(api, RouterOptions{}), service: service, tokens: tokens}
}

func (s *testServer) token(t *testing.T, identity auth.Identity) string {
	t.Helper()
	token, _, err := s.tokens.Issue(identity)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return payload
}

var (
	alice = auth.Identity{ID: "alice", Name: "Alice", Role: auth.RoleStudent}
	bob   = auth.Identity{ID: "bob", Name: "Bob", Role: auth.RoleStudent}
	admin = auth.Identity{ID: "admin", Name: "admin", Role: auth.RoleAdmin}
)

func TestHealthIsPublic(t *testing.T) {
	server := newTestServer(t, nil)
	rec := server.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	server := newTestServer(t, nil)

	rec := server.do(t, http.MethodPost, "/auth/login", "", `{"username":"carol","name":"Carol"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("dev login status = %d, body %s", rec.Code, rec.Body.String())
	}
	login := decodeBody[loginResponse](t, rec)
	if login.Identity.ID != "carol" || login.Identity.Role != auth.RoleStudent || login.Token == "" {
		t.Fatalf("unexpected login payload: %+v", login)
	}

	if rec := server.do(t, http.MethodGet, "/tests", login.Token, ""); rec.Code != http.StatusOK {
		t.Fatalf("list tests with issued token status = %d", rec.Code)
	}

	if rec := server.do(t, http.MethodPost, "/auth/login", "", `{"username":"admin","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad admin password status = %d, want 401", rec.Code)
	}
	rec = server.do(t, http.MethodPost, "/auth/login", "", `{"username":"admin","password":"secret"}`)
	if rec.Code != http.StatusOK || decodeBody[loginResponse](t, rec).Identity.Role != auth.RoleAdmin {
		t.Fatalf("admin login failed: %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newTestServer(t, nil)

	cases := []struct {
		method, path, token string
	}{
		{http.MethodPost, "/attempts", ""},
		{http.MethodGet, "/tests", ""},
		{http.MethodGet, "/tests", "not-a-token"},
	}
	for _, tc := range cases {
		rec := server.do(t, tc.method, tc.path, tc.token, `{"test_id":"t1"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d, want 401", tc.method, tc.path, rec.Code)
		}
		if payload := decodeBody[errorResponse](t, rec); payload.Error != "authentication required" {
			t.Fatalf("unexpected error payload: %+v", payload)
		}
	}
}

func TestAdminRoutesRejectStudents(t *testing.T) {
	server := newTestServer(t, nil)
	token := server.token(t, alice)

	for _, path := range []string{"/attempts", "/admin/attempts/cleanup", "/tests/practice"} {
		method := http.MethodPost
		if path == "/attempts" {
			method = http.MethodGet
		}
		if rec := server.do(t, method, path, token, ""); rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s status = %d, want 403", method, path, rec.Code)
		}
	}
}

func TestGetTestReturnsQuestions(t *testing.T) {
	server := newTestServer(t, nil)
	token := server.token(t, alice)

	rec := server.do(t, http.MethodGet, "/tests/t1", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	test := decodeBody[exam.Test](t, rec)
	if test.ID != "t1" || len(test.Questions) != 2 || test.Questions[0].Correct != exam.AnswerA {
		t.Fatalf("unexpected test payload: %+v", test)
	}

	if rec := server.do(t, http.MethodGet, "/tests/missing", token, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing test status = %d, want 404", rec.Code)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	server := newTestServer(t, nil)
	token := server.token(t, alice)

	rec := server.do(t, http.MethodPost, "/attempts", token, `{"test_id":"t1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[attemptResponse](t, rec)
	if created.Status != exam.StatusInProgress || created.TimeRemainingSeconds != 600 || created.StudentName != "Alice" {
		t.Fatalf("unexpected created attempt: %+v", created)
	}

	rec = server.do(t, http.MethodPost, "/attempts", token, `{"test_id":"t1"}`)
	if rec.Code != http.StatusOK || decodeBody[attemptResponse](t, rec).ID != created.ID {
		t.Fatalf("second create must return the active attempt, status %d", rec.Code)
	}

	rec = server.do(t, http.MethodPatch, "/attempts/"+created.ID, token, `{"answers":{"q1":"A"},"time_remaining_seconds":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body.String())
	}
	patched := decodeBody[attemptResponse](t, rec)
	if patched.AnsweredCount != 1 || patched.TimeRemainingSeconds != 500 {
		t.Fatalf("unexpected patched attempt: %+v", patched)
	}

	rec = server.do(t, http.MethodGet, "/attempts/active?test_id=t1", token, "")
	if rec.Code != http.StatusOK || decodeBody[attemptResponse](t, rec).ID != created.ID {
		t.Fatalf("active lookup status = %d", rec.Code)
	}

	final := `{"answers":{"q1":"A"},"time_remaining_seconds":480,"warning_count":0,"result":{"score":1,"max_score":2,"percentage":50,"correct_count":1,"unattempted_count":1,"time_taken_seconds":120}}`
	rec = server.do(t, http.MethodPost, "/attempts/"+created.ID+"/finalize", token, final)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize status = %d, body %s", rec.Code, rec.Body.String())
	}
	done := decodeBody[attemptResponse](t, rec)
	if done.Status != exam.StatusCompleted || done.Result == nil || done.Result.Score != 1 || done.SubmittedAt == nil {
		t.Fatalf("unexpected finalized attempt: %+v", done)
	}

	if rec := server.do(t, http.MethodPost, "/attempts/"+created.ID+"/finalize", token, final); rec.Code != http.StatusConflict {
		t.Fatalf("second finalize status = %d, want 409", rec.Code)
	}
	if rec := server.do(t, http.MethodPatch, "/attempts/"+created.ID, token, `{"warning_count":1}`); rec.Code != http.StatusConflict {
		t.Fatalf("patch after finalize status = %d, want 409", rec.Code)
	}
	if rec := server.do(t, http.MethodGet, "/attempts/active?test_id=t1", token, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("active lookup after finalize status = %d, want 404", rec.Code)
	}
	if rec := server.do(t, http.MethodPost, "/attempts", token, `{"test_id":"t1"}`); rec.Code != http.StatusConflict {
		t.Fatalf("create past the completed limit status = %d, want 409", rec.Code)
	}
}

func TestAttemptOwnership(t *testing.T) {
	server := newTestServer(t, nil)
	attempt, _, err := server.service.CreateAttempt(context.Background(), "t1", exam.Student{ID: "alice", Name: "Alice"})
	if err != nil {
		t.Fatalf("CreateAttempt failed: %v", err)
	}

	bobToken := server.token(t, bob)
	if rec := server.do(t, http.MethodGet, "/attempts/"+attempt.ID, bobToken, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign read status = %d, want 403", rec.Code)
	}
	if rec := server.do(t, http.MethodPatch, "/attempts/"+attempt.ID, bobToken, `{"warning_count":1}`); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign patch status = %d, want 403", rec.Code)
	}

	adminToken := server.token(t, admin)
	if rec := server.do(t, http.MethodGet, "/attempts/"+attempt.ID, adminToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("admin read status = %d, want 200", rec.Code)
	}
	rec := server.do(t, http.MethodGet, "/attempts?student_id=alice", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list status = %d", rec.Code)
	}
	if listed := decodeBody[attemptsResponse](t, rec); len(listed.Attempts) != 1 || listed.Attempts[0].ID != attempt.ID {
		t.Fatalf("unexpected listing: %+v", listed)
	}
}

func TestPatchValidation(t *testing.T) {
	server := newTestServer(t, nil)
	token := server.token(t, alice)
	attempt, _, err := server.service.CreateAttempt(context.Background(), "t1", exam.Student{ID: "alice"})
	if err != nil {
		t.Fatalf("CreateAttempt failed: %v", err)
	}

	cases := []string{
		`{}`,
		`{"status":"completed"}`,
		`{"time_remaining_seconds":-1}`,
		`{"answers":{"q1":5}}`,
		`{"unknown":1}`,
		`not json`,
	}
	for _, body := range cases {
		if rec := server.do(t, http.MethodPatch, "/attempts/"+attempt.ID, token, body); rec.Code != http.StatusBadRequest {
			t.Fatalf("patch %s status = %d, want 400", body, rec.Code)
		}
	}
	if rec := server.do(t, http.MethodPatch, "/attempts/missing", token, `{"warning_count":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing attempt status = %d, want 404", rec.Code)
	}
}

func TestCreatePracticeTest(t *testing.T) {
	fetched := 0
	fetcher := func(_ context.Context, amount int) ([]opentdb.RawQuestion, error) {
		fetched = amount
		return []opentdb.RawQuestion{{
			Question:         "Capital of France?",
			CorrectAnswer:    "Paris",
			IncorrectAnswers: []string{"Rome", "Berlin", "Madrid"},
		}}, nil
	}
	server := newTestServer(t, fetcher)
	token := server.token(t, admin)

	rec := server.do(t, http.MethodPost, "/tests/practice", token, `{"title":"Geo","question_count":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	summary := decodeBody[exam.TestSummary](t, rec)
	if fetched != 3 || summary.Title != "Geo" || summary.QuestionCount != 1 {
		t.Fatalf("unexpected practice summary %+v (fetched %d)", summary, fetched)
	}

	rec = server.do(t, http.MethodGet, "/tests", token, "")
	if listed := decodeBody[testsResponse](t, rec); len(listed.Tests) != 2 {
		t.Fatalf("tests = %+v, want sample and practice", listed.Tests)
	}
}

func TestCreatePracticeTestUpstreamFailure(t *testing.T) {
	fetcher := func(context.Context, int) ([]opentdb.RawQuestion, error) {
		return nil, errors.New("upstream down")
	}
	server := newTestServer(t, fetcher)

	rec := server.do(t, http.MethodPost, "/tests/practice", server.token(t, admin), "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestCleanupAttempts(t *testing.T) {
	server := newTestServer(t, nil)
	rec := server.do(t, http.MethodPost, "/admin/attempts/cleanup", server.token(t, admin), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload := decodeBody[cleanupResponse](t, rec); payload.Deleted != 0 {
		t.Fatalf("deleted = %d, want 0", payload.Deleted)
	}
}

func TestHandlersWithoutService(t *testing.T) {
	api := NewAPI(nil, nil, auth.Credentials{})
	rec := httptest.NewRecorder()
	api.HandleListTests(rec, httptest.NewRequest(http.MethodGet, "/tests", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "exam service unavailable") {
		t.Fatalf("unexpected response body: %s", rec.Body.String())
	}
}

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{exam.ErrTestNotFound, http.StatusNotFound},
		{exam.ErrAttemptNotFound, http.StatusNotFound},
		{exam.ErrAttemptCompleted, http.StatusConflict},
		{exam.ErrAttemptLimitReached, http.StatusConflict},
		{exam.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("wrap: %w", exam.ErrInvalidPatch), http.StatusBadRequest},
		{exam.ErrInvalidStudent, http.StatusBadRequest},
		{exam.ErrAuthRequired, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, tc.err)
		if rec.Code != tc.code {
			t.Fatalf("%v -> %d, want %d", tc.err, rec.Code, tc.code)
		}
	}
}

func TestParseIntParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tests", nil)
	if got, err := parseIntParam(req, "limit", 10); err != nil || got != 10 {
		t.Fatalf("default parseIntParam = (%d, %v), want (10, nil)", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/tests?limit=25", nil)
	if got, err := parseIntParam(req, "limit", 10); err != nil || got != 25 {
		t.Fatalf("valid parseIntParam = (%d, %v), want (25, nil)", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/tests?limit=-1", nil)
	if _, err := parseIntParam(req, "limit", 10); err == nil {
		t.Fatalf("expected error for negative limit")
	}
}

func TestToAttemptResponseCountsAnswered(t *testing.T) {
	response := toAttemptResponse(exam.Attempt{
		ID:      "a1",
		Status:  exam.StatusPaused,
		Answers: map[string]exam.Answer{"q1": exam.AnswerA, "q2": exam.AnswerUnset},
	})
	if response.ID != "a1" || response.Status != exam.StatusPaused || response.AnsweredCount != 1 {
		t.Fatalf("unexpected response: %+v", response)
	}
}
