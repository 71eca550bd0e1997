package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/requestctx"
)

func TestWriteErrorIncludesTraceAndDetails(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("validation_failed", "bad\r\ninput", http.StatusUnprocessableEntity).
		With("fields", map[string]string{"phone": "must be 10 digits"}).
		With("error", "shadowed"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" || rec.Header().Get("Retry-After") != "" {
		t.Fatalf("unexpected headers %v", rec.Header())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["error"] != "validation_failed" {
		t.Fatalf("details must not override the code, got %v", payload["error"])
	}
	if payload["message"] != "bad input" {
		t.Fatalf("expected single-line message, got %q", payload["message"])
	}
	if payload["trace_id"] != "abc123" {
		t.Fatalf("expected trace id, got %v", payload["trace_id"])
	}
	fields, ok := payload["fields"].(map[string]any)
	if !ok || fields["phone"] != "must be 10 digits" {
		t.Fatalf("expected field details, got %v", payload["fields"])
	}
}

func TestWithDoesNotShareDetails(t *testing.T) {
	base := NewError("upstream_unavailable", "retry", http.StatusBadGateway).With("a", 1)
	extended := base.With("b", 2)
	if _, ok := base.Details["b"]; ok {
		t.Fatal("With mutated the receiver")
	}
	if len(extended.Details) != 2 {
		t.Fatalf("expected two details, got %v", extended.Details)
	}

	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, base)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on upstream failure")
	}
}

func TestNewErrorDefaultsAndTruncates(t *testing.T) {
	err := NewError("x", strings.Repeat("₹", 300), 0)
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", err.Status)
	}
	if len(err.Message) > 512 || !strings.HasPrefix(err.Message, "₹") || !utf8.ValidString(err.Message) {
		t.Fatalf("expected rune-safe truncation, got %d bytes", len(err.Message))
	}
	if err.Error() != "x: "+err.Message {
		t.Fatalf("unexpected Error() %q", err.Error())
	}
}
