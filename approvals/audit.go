package approvals

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/njfio/taubot/internal/fsstore"
)

type AuditEvent struct {
	At         time.Time `json:"at"`
	ApprovalID string    `json:"approval_id"`
	Channel    string    `json:"channel"`
	ActorID    string    `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	ResolvedBy string    `json:"resolved_by,omitempty"`
	Comment    string    `json:"comment,omitempty"`
}

type AuditSink interface {
	Emit(ctx context.Context, e AuditEvent) error
	Close() error
}

// JSONLAuditSink appends one line per approval transition. The advisory lock
// keeps concurrent CLI invocations from interleaving writes.
type JSONLAuditSink struct {
	lockPath string
	writer   *fsstore.JSONLWriter

	mu sync.Mutex
}

func NewJSONLAuditSink(path string, rotateMaxBytes int64, lockRoot string) (*JSONLAuditSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing audit jsonl path")
	}
	if strings.TrimSpace(lockRoot) == "" {
		lockRoot = filepath.Join(filepath.Dir(path), ".fslocks")
	}
	lockPath, err := fsstore.BuildLockPath(lockRoot, "audit.approvals_jsonl")
	if err != nil {
		return nil, err
	}
	writer, err := fsstore.NewJSONLWriter(path, fsstore.JSONLOptions{
		RotateMaxBytes: rotateMaxBytes,
		FlushEachWrite: true,
	})
	if err != nil {
		return nil, err
	}
	return &JSONLAuditSink{
		lockPath: lockPath,
		writer:   writer,
	}, nil
}

func (s *JSONLAuditSink) Emit(ctx context.Context, e AuditEvent) error {
	if s == nil || s.writer == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return fsstore.WithLock(ctx, s.lockPath, func() error {
		return s.writer.AppendJSON(e)
	})
}

func (s *JSONLAuditSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}

// NopAuditSink discards audit events. Used when auditing is disabled.
type NopAuditSink struct{}

func (NopAuditSink) Emit(ctx context.Context, e AuditEvent) error { return nil }
func (NopAuditSink) Close() error                                 { return nil }
