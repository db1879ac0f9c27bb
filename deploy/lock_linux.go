//go:build linux

package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"barnacle/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// lockPoll is how often a waiting deploy retries a held game lock.
const lockPoll = 50 * time.Millisecond

// gameLock is an exclusive flock on a game's lock file. Every process working
// in the same library root takes it before mounting or unmounting that game.
// The kernel drops it when the descriptor is closed, crashes included.
type gameLock struct {
	file *os.File
}

// acquireGameLock opens (or creates) path and waits for an exclusive flock
// until ctx is done.
func acquireGameLock(ctx context.Context, path string) (*gameLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &gameLock{file: f}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

// Release unlocks and closes the lock file. Calling it again does nothing.
func (l *gameLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		logger.Log.Debugw("flock unlock failed", zap.Error(err))
	}
	if err := l.file.Close(); err != nil {
		logger.Log.Debugw("lock file close failed", zap.Error(err))
	}
	l.file = nil
}
