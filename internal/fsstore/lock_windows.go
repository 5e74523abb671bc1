//go:build windows

package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// No flock on Windows; an O_EXCL lock file stands in, removed on release.
func withLockFile(ctx context.Context, lockPath string, fn func() error) error {
	for {
		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, defaultFilePerm)
		switch {
		case err == nil:
			defer func() {
				_ = file.Close()
				_ = os.Remove(lockPath)
			}()
			stampOwner(file)
			return fn()
		case errors.Is(err, os.ErrExist):
			if waitErr := waitForLockRetry(ctx, lockPath); waitErr != nil {
				return waitErr
			}
		default:
			return fmt.Errorf("%w: open %s: %v", ErrLockUnavailable, lockPath, err)
		}
	}
}
