package channelstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenRejectsEmptySegments(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if _, err := Open(root, "", "room-1"); err == nil {
		t.Fatalf("Open(empty transport) error = nil, want error")
	}
	if _, err := Open(root, "telegram", "   "); err == nil {
		t.Fatalf("Open(blank conversation) error = nil, want error")
	}
}

func TestLogEntriesRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := Open(root, "telegram", "room-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	fixed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	if err := store.AppendLogEntry(DirectionInbound, map[string]any{"event_id": "evt-1"}); err != nil {
		t.Fatalf("AppendLogEntry() error = %v", err)
	}
	if err := store.AppendLogEntry(DirectionOutbound, map[string]any{"receipt_id": "rcp-1"}); err != nil {
		t.Fatalf("AppendLogEntry() error = %v", err)
	}

	entries, err := store.LoadLogEntries()
	if err != nil {
		t.Fatalf("LoadLogEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("LoadLogEntries() len = %d, want 2", len(entries))
	}
	if entries[0].Direction != DirectionInbound {
		t.Fatalf("entries[0].Direction = %q, want %q", entries[0].Direction, DirectionInbound)
	}
	if got := entries[0].Payload["event_id"]; got != "evt-1" {
		t.Fatalf("entries[0].Payload[event_id] = %v, want evt-1", got)
	}
	if entries[1].Direction != DirectionOutbound {
		t.Fatalf("entries[1].Direction = %q, want %q", entries[1].Direction, DirectionOutbound)
	}
	if !entries[0].At.Equal(fixed) {
		t.Fatalf("entries[0].At = %v, want %v", entries[0].At, fixed)
	}
}

func TestContextEntriesRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := Open(t.TempDir(), "slack", "C012345")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.AppendContextEntry("  user  ", "hello there"); err != nil {
		t.Fatalf("AppendContextEntry() error = %v", err)
	}
	if err := store.AppendContextEntry("assistant", "hi"); err != nil {
		t.Fatalf("AppendContextEntry() error = %v", err)
	}

	entries, err := store.LoadContextEntries()
	if err != nil {
		t.Fatalf("LoadContextEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("LoadContextEntries() len = %d, want 2", len(entries))
	}
	if entries[0].Role != "user" {
		t.Fatalf("entries[0].Role = %q, want user", entries[0].Role)
	}
	if entries[1].Text != "hi" {
		t.Fatalf("entries[1].Text = %q, want hi", entries[1].Text)
	}
}

func TestLoadFromEmptyStore(t *testing.T) {
	t.Parallel()

	store, err := Open(t.TempDir(), "discord", "guild-9")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	logs, err := store.LoadLogEntries()
	if err != nil {
		t.Fatalf("LoadLogEntries() error = %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("LoadLogEntries() len = %d, want 0", len(logs))
	}
	ctx, err := store.LoadContextEntries()
	if err != nil {
		t.Fatalf("LoadContextEntries() error = %v", err)
	}
	if len(ctx) != 0 {
		t.Fatalf("LoadContextEntries() len = %d, want 0", len(ctx))
	}
}

func TestConversationSegmentIsSanitized(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := Open(root, "telegram", "../room/with:colon")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.AppendContextEntry("user", "x"); err != nil {
		t.Fatalf("AppendContextEntry() error = %v", err)
	}

	want := filepath.Join(root, "telegram", "_room_with_colon")
	if _, err := os.Stat(filepath.Join(want, "context.jsonl")); err != nil {
		t.Fatalf("sanitized store path missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "room")); !os.IsNotExist(err) {
		t.Fatalf("path traversal segment must not escape root")
	}
}
