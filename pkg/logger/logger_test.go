package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func TestNewStampsServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "production", "response-platform-api")
	l.Info("started")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %v (%s)", err, buf.String())
	}
	if rec["service"] != "response-platform-api" {
		t.Fatalf("expected service attr, got %v", rec["service"])
	}
	if rec["env"] != "production" {
		t.Fatalf("expected env attr, got %v", rec["env"])
	}
}

func TestNewLevelPerEnv(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "production", "api").Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be suppressed in production: %s", buf.String())
	}

	buf.Reset()
	NewWithWriter(&buf, "dev", "api").Debug("visible")
	if buf.Len() == 0 {
		t.Fatalf("debug should be emitted in dev")
	}
}

func TestFromFallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}

	l := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ctx := With(context.Background(), l)
	if From(ctx) != l {
		t.Fatalf("expected context logger back")
	}
}
