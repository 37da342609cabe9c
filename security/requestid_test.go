package security

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("GenerateRequestID() = %q, not a UUID: %v", id, err)
	}
	if id == GenerateRequestID() {
		t.Error("GenerateRequestID() returned the same id twice")
	}
}

func TestRequestIDContext(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID(empty) = %q, want empty", got)
	}

	ctx := WithRequestID(context.Background(), "abc-123")
	if got := GetRequestID(ctx); got != "abc-123" {
		t.Errorf("GetRequestID() = %q, want abc-123", got)
	}
}

func TestLoggerWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LoggerWithRequestID(WithRequestID(context.Background(), "req-42"), logger).Info("hello")
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("log output missing request id: %s", buf.String())
	}

	if LoggerWithRequestID(context.Background(), logger) != logger {
		t.Error("logger without request id should be returned unchanged")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		incoming    string
		wantPreserv bool
	}{
		{name: "no header", incoming: "", wantPreserv: false},
		{name: "valid upstream id", incoming: "upstream_id-123", wantPreserv: true},
		{name: "header injection attempt", incoming: "bad\r\nX-Evil: 1", wantPreserv: false},
		{name: "too long", incoming: strings.Repeat("a", 129), wantPreserv: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			echoed := w.Header().Get(RequestIDHeader)
			if echoed == "" || echoed != seen {
				t.Fatalf("echoed id %q does not match context id %q", echoed, seen)
			}
			if got := echoed == tt.incoming; got != tt.wantPreserv {
				t.Errorf("preserved = %v, want %v (echoed %q)", got, tt.wantPreserv, echoed)
			}
		})
	}
}
