package redact

import (
	"strings"
	"testing"
)

func TestRedactBearerToken(t *testing.T) {
	t.Parallel()

	r := New(nil)
	got := r.Redact("request failed: Authorization: Bearer abc123def456 rejected")
	if strings.Contains(got, "abc123def456") {
		t.Fatalf("Redact() leaked bearer token: %q", got)
	}
}

func TestRedactBotToken(t *testing.T) {
	t.Parallel()

	r := New(nil)
	cases := []string{
		"POST https://api.telegram.example/bot123456789:AAFxy-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzz/sendMessage",
		"configured token 123456789:AAFxy-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzz rejected",
	}
	for _, in := range cases {
		got := r.Redact(in)
		if strings.Contains(got, "AAFxy") {
			t.Fatalf("Redact(%q) leaked bot token: %q", in, got)
		}
	}
}

func TestRedactKnownSecret(t *testing.T) {
	t.Parallel()

	r := New([]string{"s3cr3t-value-9"})
	got := r.Redact("delivery failed for s3cr3t-value-9 endpoint")
	if strings.Contains(got, "s3cr3t-value-9") {
		t.Fatalf("Redact() leaked known secret: %q", got)
	}
}

func TestRedactAssignmentKeepsKey(t *testing.T) {
	t.Parallel()

	r := New(nil)
	got := r.Redact(`{"api_key":"abcdef123456"}`)
	if strings.Contains(got, "abcdef123456") {
		t.Fatalf("Redact() leaked assigned secret: %q", got)
	}
	if !strings.Contains(got, "api_key") {
		t.Fatalf("Redact() dropped key name: %q", got)
	}
}

func TestRedactShortSecretIgnored(t *testing.T) {
	t.Parallel()

	r := New([]string{"ok"})
	got := r.Redact("everything is ok")
	if got != "everything is ok" {
		t.Fatalf("Redact() = %q, want unchanged", got)
	}
}
