package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("GET", "https://example.com")

	if req.Method != "GET" {
		t.Errorf("Expected method GET, got %s", req.Method)
	}
	if req.URL != "https://example.com" {
		t.Errorf("Expected URL https://example.com, got %s", req.URL)
	}
	if req.Timeout != 30 {
		t.Errorf("Expected default timeout 30, got %d", req.Timeout)
	}
	if req.UserAgent != "eve-http/1.0" {
		t.Errorf("Expected default User-Agent eve-http/1.0, got %s", req.UserAgent)
	}
}

func TestExecuteGET(t *testing.T) {
	// Create test server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Hello, World!"))
	}))
	defer server.Close()

	// Execute request
	req := NewRequest("GET", server.URL)
	resp, err := Execute(req)

	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if resp.BodyString != "Hello, World!" {
		t.Errorf("Expected body 'Hello, World!', got %s", resp.BodyString)
	}
}

func TestExecutePOSTJSON(t *testing.T) {
	// Create test server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}

		contentType := r.Header.Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", contentType)
		}

		var data map[string]string
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			t.Fatalf("Failed to decode JSON: %v", err)
		}

		if data["key"] != "value" {
			t.Errorf("Expected key=value, got %s", data["key"])
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status": "success"}`))
	}))
	defer server.Close()

	// Execute request
	req := NewRequest("POST", server.URL)
	req.JSONBody = `{"key": "value"}`
	resp, err := Execute(req)

	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if resp.BodyString != `{"status": "success"}` {
		t.Errorf("Expected body '{\"status\": \"success\"}', got %s", resp.BodyString)
	}
}

func TestResponseIsSuccess(t *testing.T) {
	tests := []struct {
		statusCode int
		expected   bool
	}{
		{200, true},
		{201, true},
		{299, true},
		{300, false},
		{400, false},
		{500, false},
	}

	for _, tt := range tests {
		resp := &Response{StatusCode: tt.statusCode}
		if resp.IsSuccess() != tt.expected {
			t.Errorf("StatusCode %d: expected IsSuccess()=%v, got %v",
				tt.statusCode, tt.expected, resp.IsSuccess())
		}
	}
}

func TestResponseIsClientError(t *testing.T) {
	tests := []struct {
		statusCode int
		expected   bool
	}{
		{400, true},
		{404, true},
		{499, true},
		{200, false},
		{500, false},
	}

	for _, tt := range tests {
		resp := &Response{StatusCode: tt.statusCode}
		if resp.IsClientError() != tt.expected {
			t.Errorf("StatusCode %d: expected IsClientError()=%v, got %v",
				tt.statusCode, tt.expected, resp.IsClientError())
		}
	}
}

func TestResponseIsServerError(t *testing.T) {
	tests := []struct {
		statusCode int
		expected   bool
	}{
		{500, true},
		{502, true},
		{599, true},
		{200, false},
		{400, false},
	}

	for _, tt := range tests {
		resp := &Response{StatusCode: tt.statusCode}
		if resp.IsServerError() != tt.expected {
			t.Errorf("StatusCode %d: expected IsServerError()=%v, got %v",
				tt.statusCode, tt.expected, resp.IsServerError())
		}
	}
}

func TestExecuteRange(t *testing.T) {
	const body = "0123456789"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng != "bytes=2-5" {
			t.Errorf("Expected Range bytes=2-5, got %q", rng)
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte(body[2:6]))
	}))
	defer server.Close()

	req := NewRequest("GET", server.URL)
	req.RangeStart = 2
	req.RangeLength = 4
	resp, err := Execute(req)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("Expected status 206, got %d", resp.StatusCode)
	}
	if resp.BodyString != "2345" {
		t.Errorf("Expected body '2345', got %s", resp.BodyString)
	}
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := NewRequest("GET", server.URL)
	req.Ctx = ctx

	if _, err := Execute(req); err == nil {
		t.Fatal("expected Execute to fail against a canceled context")
	}
}

func TestExecuteAppliesLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	limiter := rate.NewLimiter(rate.Inf, 1)
	req := NewRequest("GET", server.URL)
	req.Limiter = limiter

	if _, err := Execute(req); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		strategy string
		expected string // Duration string for comparison
	}{
		{0, "exponential", "1s"},
		{1, "exponential", "2s"},
		{2, "exponential", "4s"},
		{3, "exponential", "8s"},
		{0, "linear", "1s"},
		{1, "linear", "2s"},
		{2, "linear", "3s"},
		{3, "linear", "4s"},
	}

	for _, tt := range tests {
		backoff := calculateBackoff(tt.attempt, tt.strategy, 1*time.Second)
		if backoff.String() != tt.expected {
			t.Errorf("Attempt %d (%s): expected %s, got %s",
				tt.attempt, tt.strategy, tt.expected, backoff)
		}
	}
}
