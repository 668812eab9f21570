package logging

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("expected debug level to parse, got %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug entries to be enabled")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	ctx := ContextWithRequestID(context.Background(), "req-9")
	if got := RequestID(ctx); got != "req-9" {
		t.Fatalf("expected req-9, got %q", got)
	}
}

func TestNewOperationError(t *testing.T) {
	if err := NewOperationError("ocr.read_text", "req-1", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	cause := errors.New("boom")
	err := NewOperationError("ocr.read_text", "req-1", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if got := err.Error(); got != "ocr.read_text (request_id=req-1): boom" {
		t.Fatalf("unexpected message: %s", got)
	}
	if got := NewOperationError("llm.complete", "", cause).Error(); got != "llm.complete: boom" {
		t.Fatalf("unexpected message: %s", got)
	}
}
