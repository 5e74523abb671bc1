// Package fsstore holds the disk primitives behind the single-writer state
// directory: atomic JSON snapshots, append-only JSONL logs with size-based
// rotation, and advisory locks keyed by subsystem. Higher layers never
// touch the filesystem directly for mutable state.
package fsstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath       = errors.New("fsstore: bad path or lock key")
	ErrLockTimeout       = errors.New("fsstore: gave up waiting for lock")
	ErrLockUnavailable   = errors.New("fsstore: cannot acquire lock")
	ErrEncodeFailed      = errors.New("fsstore: json encode")
	ErrDecodeFailed      = errors.New("fsstore: json decode")
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write")
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600

	// Rotated log segments stay on disk; this bounds a single segment.
	defaultRotateMaxBytes = 100 * 1024 * 1024
)

type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func (o FileOptions) withDefaults() FileOptions {
	if o.DirPerm == 0 {
		o.DirPerm = defaultDirPerm
	}
	if o.FilePerm == 0 {
		o.FilePerm = defaultFilePerm
	}
	return o
}

type JSONLOptions struct {
	DirPerm        os.FileMode
	FilePerm       os.FileMode
	RotateMaxBytes int64
	FlushEachWrite bool
}

func (o JSONLOptions) withDefaults() JSONLOptions {
	if o.DirPerm == 0 {
		o.DirPerm = defaultDirPerm
	}
	if o.FilePerm == 0 {
		o.FilePerm = defaultFilePerm
	}
	if o.RotateMaxBytes <= 0 {
		o.RotateMaxBytes = defaultRotateMaxBytes
	}
	return o
}

func cleanPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

func EnsureDir(path string, perm os.FileMode) error {
	dir, err := cleanPath(path)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	return nil
}

// writeAtomic lands content under path via a same-directory temp file and
// rename, so a concurrent reader sees either the old content or the new,
// never a torn write.
func writeAtomic(path string, content []byte, opts FileOptions) error {
	dst, err := cleanPath(path)
	if err != nil {
		return err
	}
	opts = opts.withDefaults()

	dir := filepath.Dir(dst)
	if err := EnsureDir(dir, opts.DirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("%w: temp for %s: %v", ErrAtomicWriteFailed, dst, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrAtomicWriteFailed, dst, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", ErrAtomicWriteFailed, dst, err)
	}
	if err := tmp.Chmod(opts.FilePerm); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", ErrAtomicWriteFailed, dst, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrAtomicWriteFailed, dst, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrAtomicWriteFailed, dst, err)
	}

	// Durability of the rename itself is best effort.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
