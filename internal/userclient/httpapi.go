package userclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"exam-app/internal/exam"
)

var ErrServiceUnavailable = errors.New("exam service unavailable")

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// Unwrap maps the response onto the exam error it reports so callers can
// use errors.Is across the network boundary.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return exam.ErrAuthRequired
	case http.StatusForbidden:
		return exam.ErrForbidden
	case http.StatusNotFound:
		if strings.Contains(e.Message, "test") {
			return exam.ErrTestNotFound
		}
		return exam.ErrAttemptNotFound
	case http.StatusConflict:
		if strings.Contains(e.Message, "limit") {
			return exam.ErrAttemptLimitReached
		}
		return exam.ErrAttemptCompleted
	}
	return nil
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type errorResponse struct {
	Error string `json:"error"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"identity"`
}

type testsResponse struct {
	Tests []exam.TestSummary `json:"tests"`
}

type createAttemptRequest struct {
	TestID string `json:"test_id"`
}

type practiceRequest struct {
	Title            string `json:"title,omitempty"`
	QuestionCount    int    `json:"question_count,omitempty"`
	TimeLimitMinutes int    `json:"time_limit_minutes,omitempty"`
}

func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimSpace(baseURL)
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *HTTPClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a bearer token and keeps it for later calls.
func (c *HTTPClient) Login(ctx context.Context, username, password, name string) (Session, error) {
	var session Session
	request := loginRequest{Username: username, Password: password, Name: name}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", request, &session); err != nil {
		return Session{}, err
	}
	c.SetToken(session.Token)
	return session, nil
}

func (c *HTTPClient) ListTests(ctx context.Context, limit int) ([]exam.TestSummary, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var payload testsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/tests?"+query.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	return payload.Tests, nil
}

func (c *HTTPClient) GetTest(ctx context.Context, testID string) (exam.Test, error) {
	if strings.TrimSpace(testID) == "" {
		return exam.Test{}, errors.New("test id is required")
	}

	var test exam.Test
	if err := c.doJSON(ctx, http.MethodGet, "/tests/"+url.PathEscape(testID), nil, &test); err != nil {
		return exam.Test{}, err
	}
	return test, nil
}

func (c *HTTPClient) CreatePracticeTest(ctx context.Context, title string, questionCount, timeLimitMinutes int) (exam.TestSummary, error) {
	var summary exam.TestSummary
	request := practiceRequest{Title: title, QuestionCount: questionCount, TimeLimitMinutes: timeLimitMinutes}
	if err := c.doJSON(ctx, http.MethodPost, "/tests/practice", request, &summary); err != nil {
		return exam.TestSummary{}, err
	}
	return summary, nil
}

// CreateAttempt returns the id of the student's active attempt, creating one
// if none exists.
func (c *HTTPClient) CreateAttempt(ctx context.Context, testID string) (string, error) {
	var attempt exam.Attempt
	if err := c.doJSON(ctx, http.MethodPost, "/attempts", createAttemptRequest{TestID: testID}, &attempt); err != nil {
		return "", err
	}
	if attempt.ID == "" {
		return "", errors.New("create attempt: empty attempt id in response")
	}
	return attempt.ID, nil
}

func (c *HTTPClient) UpdateAttempt(ctx context.Context, attemptID string, patch exam.AttemptPatch) error {
	return c.doJSON(ctx, http.MethodPatch, "/attempts/"+url.PathEscape(attemptID), patch, nil)
}

func (c *HTTPClient) FinalizeAttempt(ctx context.Context, attemptID string, final exam.Finalization) (exam.Attempt, error) {
	var attempt exam.Attempt
	if err := c.doJSON(ctx, http.MethodPost, "/attempts/"+url.PathEscape(attemptID)+"/finalize", final, &attempt); err != nil {
		return exam.Attempt{}, err
	}
	return attempt, nil
}

// FetchExistingAttempt returns nil without error when the student has no
// active attempt for the test.
func (c *HTTPClient) FetchExistingAttempt(ctx context.Context, testID string) (*exam.Attempt, error) {
	query := url.Values{}
	query.Set("test_id", testID)

	var attempt exam.Attempt
	err := c.doJSON(ctx, http.MethodGet, "/attempts/active?"+query.Encode(), nil, &attempt)
	if errors.Is(err, exam.ErrAttemptNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) error {
	fullURL := c.baseURL + path

	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return err
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := APIError{StatusCode: response.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(response.Body).Decode(&payload); err == nil && strings.TrimSpace(payload.Error) != "" {
			apiErr.Message = payload.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = response.Status
		}
		return &apiErr
	}

	if responseBody == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(responseBody)
}
