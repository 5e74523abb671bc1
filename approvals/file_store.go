package approvals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/njfio/taubot/internal/fsstore"
)

const approvalsFileVersion = 1

type approvalsStateFile struct {
	Version int               `json:"version"`
	Records map[string]Record `json:"records"`
}

// FileApprovalStore keeps all approval records in one JSON document guarded
// by an advisory lock, so command handlers and the CLI can share it.
type FileApprovalStore struct {
	path     string
	lockPath string

	now func() time.Time
}

func NewFileApprovalStore(path, lockRoot string) (*FileApprovalStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing approvals file path")
	}
	if strings.TrimSpace(lockRoot) == "" {
		return nil, fmt.Errorf("missing lock root")
	}
	lockPath, err := fsstore.BuildLockPath(lockRoot, "state.approvals")
	if err != nil {
		return nil, err
	}
	return &FileApprovalStore{
		path:     path,
		lockPath: lockPath,
		now:      time.Now,
	}, nil
}

func (s *FileApprovalStore) Create(ctx context.Context, rec Record) (string, error) {
	if s == nil {
		return "", fmt.Errorf("nil approval store")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateCreate(rec); err != nil {
		return "", err
	}

	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = rec.CreatedAt.Add(DefaultTTL)
	}
	rec.Status = StatusPending
	rec.ResolvedAt = nil
	rec.ResolvedBy = ""
	rec.Comment = ""

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = newApprovalID()
	}
	rec.ID = id

	if err := fsstore.WithLock(ctx, s.lockPath, func() error {
		state, err := s.loadState()
		if err != nil {
			return err
		}
		state.Records[id] = rec
		return s.saveState(state)
	}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *FileApprovalStore) Get(ctx context.Context, id string) (Record, bool, error) {
	if s == nil {
		return Record{}, false, fmt.Errorf("nil approval store")
	}
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, false, nil
	}
	state, err := s.loadState()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := state.Records[id]
	if !ok {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Resolve transitions one pending record to approved or rejected. Records
// past their deadline are marked expired instead and the caller gets
// ErrExpired.
func (s *FileApprovalStore) Resolve(ctx context.Context, id string, status Status, actor, comment string) (Record, error) {
	if s == nil {
		return Record{}, fmt.Errorf("nil approval store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, fmt.Errorf("%w: id", ErrMissingField)
	}
	switch status {
	case StatusApproved, StatusRejected:
	default:
		return Record{}, fmt.Errorf("%w: %q", ErrBadStatus, status)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var resolved Record
	err := fsstore.WithLock(ctx, s.lockPath, func() error {
		state, err := s.loadState()
		if err != nil {
			return err
		}
		rec, ok := state.Records[id]
		if !ok {
			return ErrNotFound
		}
		if rec.Status != StatusPending {
			resolved = rec
			return ErrNotPending
		}
		now := s.now().UTC()
		if rec.Effective(now) == StatusExpired {
			rec.Status = StatusExpired
			state.Records[id] = rec
			resolved = rec
			if err := s.saveState(state); err != nil {
				return err
			}
			return ErrExpired
		}
		rec.Status = status
		rec.ResolvedBy = strings.TrimSpace(actor)
		rec.Comment = strings.TrimSpace(comment)
		rec.ResolvedAt = &now
		state.Records[id] = rec
		resolved = rec
		return s.saveState(state)
	})
	return resolved, err
}

func (s *FileApprovalStore) ListPending(ctx context.Context, now time.Time) ([]Record, error) {
	if s == nil {
		return nil, fmt.Errorf("nil approval store")
	}
	_ = ctx
	state, err := s.loadState()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(state.Records))
	for _, rec := range state.Records {
		if rec.Effective(now.UTC()) != StatusPending {
			continue
		}
		out = append(out, rec)
	}
	sortByCreated(out)
	return out, nil
}

func (s *FileApprovalStore) loadState() (approvalsStateFile, error) {
	var file approvalsStateFile
	ok, err := fsstore.ReadJSON(s.path, &file)
	if err != nil {
		return approvalsStateFile{}, err
	}
	if !ok {
		return approvalsStateFile{
			Version: approvalsFileVersion,
			Records: map[string]Record{},
		}, nil
	}
	if file.Version == 0 {
		file.Version = approvalsFileVersion
	}
	if file.Records == nil {
		file.Records = map[string]Record{}
	}
	return file, nil
}

func (s *FileApprovalStore) saveState(file approvalsStateFile) error {
	if file.Version == 0 {
		file.Version = approvalsFileVersion
	}
	if file.Records == nil {
		file.Records = map[string]Record{}
	}
	return fsstore.WriteJSONAtomic(s.path, file, fsstore.FileOptions{})
}
