package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockKeyMaxLen = 120
	lockRetryWait = 25 * time.Millisecond
)

// BuildLockPath maps a subsystem lock key to its file under the lock root.
// Keys are lowercase dotted identifiers ("state.approvals"); anything else
// is rejected so lock files can never escape the root.
func BuildLockPath(lockRoot, lockKey string) (string, error) {
	root, err := cleanPath(lockRoot)
	if err != nil {
		return "", err
	}
	key, err := checkLockKey(lockKey)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, key+".lck"), nil
}

// WithLock runs fn while holding the advisory lock at lockPath. Waiting
// for a held lock is bounded by the context.
func WithLock(ctx context.Context, lockPath string, fn func() error) error {
	path, err := cleanPath(lockPath)
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureDir(filepath.Dir(path), defaultDirPerm); err != nil {
		return err
	}
	return withLockFile(ctx, path, fn)
}

func checkLockKey(lockKey string) (string, error) {
	key := strings.TrimSpace(lockKey)
	switch {
	case key == "":
		return "", fmt.Errorf("%w: empty lock key", ErrInvalidPath)
	case len(key) > lockKeyMaxLen:
		return "", fmt.Errorf("%w: lock key longer than %d", ErrInvalidPath, lockKeyMaxLen)
	case strings.HasPrefix(key, ".") || strings.HasSuffix(key, "."):
		return "", fmt.Errorf("%w: lock key has leading or trailing dot", ErrInvalidPath)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return "", fmt.Errorf("%w: lock key character %q", ErrInvalidPath, r)
		}
	}
	return key, nil
}

// stampOwner records who holds the lock inside the lock file. Purely for
// operator inspection when a lock looks stuck.
func stampOwner(file *os.File) {
	if file == nil {
		return
	}
	host, _ := os.Hostname()
	data, err := json.Marshal(map[string]any{
		"pid":         os.Getpid(),
		"hostname":    host,
		"acquired_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = file.Write(append(data, '\n'))
	_ = file.Sync()
}

func waitForLockRetry(ctx context.Context, lockPath string) error {
	timer := time.NewTimer(lockRetryWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrLockTimeout, lockPath, ctx.Err())
	case <-timer.C:
		return nil
	}
}
