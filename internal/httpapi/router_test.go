package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"exam-app/internal/auth"
)

func TestStatusRecorderWriteTracksAndTruncates(t *testing.T) {
	base := httptest.NewRecorder()
	recorder := &statusRecorder{
		ResponseWriter: base,
		statusCode:     http.StatusOK,
		maxLogBytes:    10,
	}

	payload := []byte("abcdefghijklmnopqrstuvwxyz")
	written, err := recorder.Write(payload)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if written != len(payload) {
		t.Fatalf("written bytes = %d, want %d", written, len(payload))
	}
	if recorder.bytesWritten != len(payload) {
		t.Fatalf("bytesWritten = %d, want %d", recorder.bytesWritten, len(payload))
	}
	if recorder.logBody.Len() != 10 {
		t.Fatalf("log body length = %d, want 10", recorder.logBody.Len())
	}
	if !recorder.truncated {
		t.Fatalf("expected truncated flag to be true")
	}
}

func TestStatusRecorderCapturesStatus(t *testing.T) {
	base := httptest.NewRecorder()
	recorder := &statusRecorder{ResponseWriter: base, statusCode: http.StatusOK, maxLogBytes: 4}

	recorder.WriteHeader(http.StatusTeapot)
	_, _ = recorder.Write([]byte("ab"))
	_, _ = recorder.Write([]byte("cdef"))

	if recorder.statusCode != http.StatusTeapot || base.Code != http.StatusTeapot {
		t.Fatalf("status = %d/%d, want 418", recorder.statusCode, base.Code)
	}
	if recorder.logBody.String() != "abcd" || !recorder.truncated {
		t.Fatalf("log body = %q truncated=%t", recorder.logBody.String(), recorder.truncated)
	}
}

func TestRouterHandlesCORSPreflight(t *testing.T) {
	handler := NewRouter(NewAPI(nil, nil, auth.Credentials{}), RouterOptions{CORSOrigins: []string{"https://exam.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/attempts", nil)
	req.Header.Set("Origin", "https://exam.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://exam.example" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	handler := NewRouter(NewAPI(nil, nil, auth.Credentials{}), RouterOptions{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
