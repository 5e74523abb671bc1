package approvals

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/njfio/taubot/internal/fsstore"
)

func newTestStore(t *testing.T) *FileApprovalStore {
	t.Helper()
	root := t.TempDir()
	store, err := NewFileApprovalStore(
		filepath.Join(root, "approvals.json"),
		filepath.Join(root, ".fslocks"),
	)
	if err != nil {
		t.Fatalf("NewFileApprovalStore() error = %v", err)
	}
	return store
}

func TestFileApprovalStoreCreateGetResolve(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	id, err := store.Create(context.Background(), Record{
		Channel: "telegram:room-1",
		ActorID: "actor-1",
		Action:  "doctor",
		Summary: "run diagnostics",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(id, "apr_") {
		t.Fatalf("Create() id = %q, want apr_ prefix", id)
	}

	rec, ok, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatalf("Get() expected ok=true")
	}
	if rec.Status != StatusPending {
		t.Fatalf("Get() status = %s, want %s", rec.Status, StatusPending)
	}
	if !rec.ExpiresAt.Equal(rec.CreatedAt.Add(DefaultTTL)) {
		t.Fatalf("Get() expires_at = %v, want created+%v", rec.ExpiresAt, DefaultTTL)
	}

	resolved, err := store.Resolve(context.Background(), id, StatusApproved, "operator", "ok")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != StatusApproved {
		t.Fatalf("Resolve() status = %s, want %s", resolved.Status, StatusApproved)
	}
	if resolved.ResolvedBy != "operator" {
		t.Fatalf("Resolve() resolved_by = %q, want operator", resolved.ResolvedBy)
	}
	if resolved.ResolvedAt == nil {
		t.Fatalf("Resolve() resolved_at = nil, want set")
	}
}

func TestResolveIsExactlyOnce(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	id, err := store.Create(context.Background(), Record{Channel: "slack:C01", Action: "doctor"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Resolve(context.Background(), id, StatusRejected, "op", ""); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, err := store.Resolve(context.Background(), id, StatusApproved, "op2", ""); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second Resolve() error = %v, want ErrNotPending", err)
	}

	rec, _, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusRejected {
		t.Fatalf("status after double resolve = %s, want %s", rec.Status, StatusRejected)
	}
}

func TestResolveUnknownAndBadStatus(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if _, err := store.Resolve(context.Background(), "apr_missing", StatusApproved, "op", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := store.Resolve(context.Background(), "apr_x", StatusPending, "op", ""); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("Resolve(pending) error = %v, want ErrBadStatus", err)
	}
}

func TestExpiredRecordCannotBeApproved(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	id, err := store.Create(context.Background(), Record{Channel: "telegram:room-2", Action: "doctor"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	store.now = func() time.Time { return base.Add(DefaultTTL + time.Second) }
	if _, err := store.Resolve(context.Background(), id, StatusApproved, "op", ""); !errors.Is(err, ErrExpired) {
		t.Fatalf("Resolve(expired) error = %v, want ErrExpired", err)
	}

	rec, _, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusExpired {
		t.Fatalf("status = %s, want %s", rec.Status, StatusExpired)
	}
}

func TestListPendingSkipsResolvedAndExpired(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	early, err := store.Create(context.Background(), Record{Channel: "telegram:a", Action: "doctor"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	store.now = func() time.Time { return base.Add(time.Minute) }
	late, err := store.Create(context.Background(), Record{Channel: "telegram:b", Action: "doctor"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	done, err := store.Create(context.Background(), Record{Channel: "telegram:c", Action: "doctor"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Resolve(context.Background(), done, StatusApproved, "op", ""); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// Past the first record's deadline but inside the second's.
	now := base.Add(DefaultTTL + time.Second)
	pending, err := store.ListPending(context.Background(), now)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ListPending() len = %d, want 1", len(pending))
	}
	if pending[0].ID != late {
		t.Fatalf("ListPending()[0].ID = %q, want %q", pending[0].ID, late)
	}
	_ = early
}

func TestCreateRequiresChannelAndAction(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if _, err := store.Create(context.Background(), Record{Action: "doctor"}); !errors.Is(err, ErrMissingField) {
		t.Fatalf("Create(no channel) error = %v, want ErrMissingField", err)
	}
	if _, err := store.Create(context.Background(), Record{Channel: "telegram:x"}); !errors.Is(err, ErrMissingField) {
		t.Fatalf("Create(no action) error = %v, want ErrMissingField", err)
	}
}

func TestJSONLAuditSinkWritesEvents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "approvals_audit.jsonl")
	sink, err := NewJSONLAuditSink(path, 0, filepath.Join(root, ".fslocks"))
	if err != nil {
		t.Fatalf("NewJSONLAuditSink() error = %v", err)
	}
	if err := sink.Emit(context.Background(), AuditEvent{
		ApprovalID: "apr_1",
		Channel:    "telegram:room-1",
		Action:     "doctor",
		Status:     string(StatusPending),
	}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines, ok, err := fsstore.ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines() error = %v", err)
	}
	if !ok || len(lines) != 1 {
		t.Fatalf("ReadLines() ok=%v len=%d, want one line", ok, len(lines))
	}
	if !strings.Contains(lines[0], `"approval_id":"apr_1"`) {
		t.Fatalf("audit line missing approval id: %s", lines[0])
	}
}
