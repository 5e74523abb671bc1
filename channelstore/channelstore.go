// Package channelstore is the append-only per-conversation log and context
// store the runtime writes decisions and summaries into. The contract is
// append and read; storage is one directory per (transport, conversation)
// holding two JSONL files.
package channelstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/njfio/taubot/internal/fsstore"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type LogEntry struct {
	Direction Direction      `json:"direction"`
	Payload   map[string]any `json:"payload"`
	At        time.Time      `json:"at"`
}

type ContextEntry struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type Store struct {
	dir string

	now func() time.Time
}

// Open returns the store for one conversation, creating its directory on
// first use.
func Open(root, transport, conversation string) (*Store, error) {
	transport = strings.TrimSpace(transport)
	conversation = sanitizeSegment(conversation)
	if transport == "" || conversation == "" {
		return nil, fmt.Errorf("channelstore: transport and conversation are required")
	}
	dir := filepath.Join(root, transport, conversation)
	if err := fsstore.EnsureDir(dir, 0); err != nil {
		return nil, err
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) AppendLogEntry(direction Direction, payload map[string]any) error {
	return s.appendJSON("log.jsonl", LogEntry{
		Direction: direction,
		Payload:   payload,
		At:        s.now().UTC(),
	})
}

func (s *Store) AppendContextEntry(role, text string) error {
	return s.appendJSON("context.jsonl", ContextEntry{
		Role: strings.TrimSpace(role),
		Text: text,
		At:   s.now().UTC(),
	})
}

func (s *Store) LoadLogEntries() ([]LogEntry, error) {
	lines, _, err := fsstore.ReadLines(filepath.Join(s.dir, "log.jsonl"))
	if err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, len(lines))
	for _, line := range lines {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("channelstore: decode log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) LoadContextEntries() ([]ContextEntry, error) {
	lines, _, err := fsstore.ReadLines(filepath.Join(s.dir, "context.jsonl"))
	if err != nil {
		return nil, err
	}
	entries := make([]ContextEntry, 0, len(lines))
	for _, line := range lines {
		var entry ContextEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("channelstore: decode context entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) appendJSON(filename string, v any) error {
	w, err := fsstore.NewJSONLWriter(filepath.Join(s.dir, filename), fsstore.JSONLOptions{
		FlushEachWrite: true,
	})
	if err != nil {
		return err
	}
	if err := w.AppendJSON(v); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func sanitizeSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}
