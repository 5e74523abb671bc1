package logutil

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewJSONHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("sample_line", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"sample_line"`) {
		t.Fatalf("New() json output = %q, want msg field", buf.String())
	}
}

func TestNewRejectsUnknowns(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("New(format=xml) expected error")
	}
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("New(level=loud) expected error")
	}
}

func TestNewLevelGate(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hidden")
	logger.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line missing: %q", out)
	}
}
