package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"magical-academy/internal/config"
)

func TestNew_JSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, config.LogConfig{Level: "warn", Format: "json"}, false)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected exactly one line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["message"] != "kept" || entry["level"] != "warn" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestWith_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, config.LogConfig{Level: "info"}, false)

	ctx := WithTraceID(context.Background(), "tr-1")
	ctx = WithSessID(ctx, "sess-1")
	ctx = WithThreadID(ctx, "thread_1")
	With(ctx, base).Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	for k, want := range map[string]string{"trace_id": "tr-1", "session_id": "sess-1", "thread_id": "thread_1"} {
		if entry[k] != want {
			t.Errorf("field %s = %v, want %s", k, entry[k], want)
		}
	}
	if TraceID(ctx) != "tr-1" {
		t.Errorf("TraceID() = %q", TraceID(ctx))
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("sk-1234567890", false); got != "sk-1...90" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("short", false); got != "***" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("sk-1234567890", true); got != "sk-1234567890" {
		t.Errorf("dev mode must not redact, got %q", got)
	}
}
