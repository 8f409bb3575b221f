package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dmi3yy/webui-pipes/internal/auth"
)

// =============================================================================
// RequestIDMiddleware Tests
// =============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("Expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	RequestIDMiddleware(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec1 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec1, httptest.NewRequest("GET", "/", nil))
	rec2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec2, httptest.NewRequest("GET", "/", nil))

	if id1, id2 := rec1.Header().Get("X-Request-ID"), rec2.Header().Get("X-Request-ID"); id1 == id2 {
		t.Errorf("Expected unique request IDs, got same: %s", id1)
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("Expected empty string, got %q", id)
	}
}

// =============================================================================
// TimeoutMiddleware Tests
// =============================================================================

func TestTimeoutMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); !ok {
			t.Error("Expected context to have deadline")
		}
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	TimeoutMiddleware(30*time.Second)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestTimeoutMiddleware_ContextCancelled(t *testing.T) {
	cancelled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			cancelled = true
		case <-time.After(time.Second):
		}
	})

	rec := httptest.NewRecorder()
	TimeoutMiddleware(10*time.Millisecond)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if !cancelled {
		t.Error("Expected context to be cancelled due to timeout")
	}
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

func TestAuthMiddleware(t *testing.T) {
	authenticator := auth.NewAuthenticator([]string{auth.HashAPIKey("valid-key-123")})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid bearer", "Bearer valid-key-123", http.StatusOK, ""},
		{"lowercase scheme", "bearer valid-key-123", http.StatusOK, ""},
		{"without bearer prefix", "valid-key-123", http.StatusOK, ""},
		{"invalid key", "Bearer invalid-key", http.StatusUnauthorized, "Invalid API key"},
		{"missing header", "", http.StatusUnauthorized, "Missing Authorization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(authenticator)(handler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("Expected %q in response, got %s", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_NilAuthenticator(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	AuthMiddleware(nil)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
}

// =============================================================================
// UserMiddleware Tests
// =============================================================================

func TestUserMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		wantID   string
		wantRole string
		wantNil  bool
	}{
		{
			name:     "host headers",
			headers:  map[string]string{"X-OpenWebUI-User-Id": "u1", "X-OpenWebUI-User-Role": "admin"},
			wantID:   "u1",
			wantRole: "admin",
		},
		{
			name:     "short headers",
			headers:  map[string]string{"X-User-Id": "u2", "X-User-Role": "user"},
			wantID:   "u2",
			wantRole: "user",
		},
		{
			name:    "host headers win",
			headers: map[string]string{"X-OpenWebUI-User-Id": "u1", "X-User-Id": "u2"},
			wantID:  "u1",
		},
		{
			name:     "role only",
			headers:  map[string]string{"X-User-Role": "admin"},
			wantRole: "admin",
		},
		{name: "no identity", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				u := UserFrom(r.Context())
				if tt.wantNil {
					if u != nil {
						t.Errorf("Expected no user, got %+v", u)
					}
					return
				}
				if u == nil {
					t.Fatal("Expected user in context")
				}
				if u.ID != tt.wantID || u.Role != tt.wantRole {
					t.Errorf("user = %+v, want id %q role %q", u, tt.wantID, tt.wantRole)
				}
			})

			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			UserMiddleware(handler).ServeHTTP(httptest.NewRecorder(), req)
		})
	}
}

// =============================================================================
// LoggingMiddleware Tests
// =============================================================================

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("OK"))
	})

	wrapped := RequestIDMiddleware(LoggingMiddleware(logger)(testHandler))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test-path", nil))

	output := buf.String()
	for _, want := range []string{"request started", "request completed", "/test-path", "status=202"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in log output, got: %s", want, output)
		}
	}
}

func TestLoggingMiddleware_PreservesFlusher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("Expected wrapped writer to implement http.Flusher")
		}
	})
	LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestAddLogField(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "custom_field", "custom_value")
		AddLogField(r.Context(), "empty_field", "")
	})

	LoggingMiddleware(logger)(testHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	output := buf.String()
	if !strings.Contains(output, "custom_field=custom_value") {
		t.Errorf("Expected custom field in log output, got: %s", output)
	}
	if strings.Contains(output, "empty_field") {
		t.Errorf("Empty field should not be in log output, got: %s", output)
	}
}

func TestAddLogField_NoContext(t *testing.T) {
	AddLogField(context.Background(), "key", "value")
	AddError(context.Background(), nil)
}

func TestAddError(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddError(r.Context(), errors.New("test error message"))
		w.WriteHeader(http.StatusInternalServerError)
	})

	LoggingMiddleware(logger)(testHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	output := buf.String()
	if !strings.Contains(output, "level=ERROR") || !strings.Contains(output, "test error message") {
		t.Errorf("Expected error in log output, got: %s", output)
	}
}

// =============================================================================
// Server Tests
// =============================================================================

func TestServerServeAndShutdown(t *testing.T) {
	s := New(0, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)), time.Second)
	s.Router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v", err)
	}
}
