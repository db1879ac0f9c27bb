// Package perms toggles whole directory trees between read-only and read-write.
package perms

import (
	"os"
	"path/filepath"
	"sync"

	"barnacle/errs"
	"barnacle/logger"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	writeBits = 0o222
	ownerRW   = 0o600
	ownerRWX  = 0o700
)

// Manager applies permission changes through fs. Concurrent calls for the
// same root are serialized.
type Manager struct {
	fs afero.Fs

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(fs afero.Fs) *Manager {
	return &Manager{fs: fs, locks: make(map[string]*sync.Mutex)}
}

// NewOS is a Manager over the real filesystem.
func NewOS() *Manager {
	return New(afero.NewOsFs())
}

func (m *Manager) lockFor(root string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[root]
	if !ok {
		l = &sync.Mutex{}
		m.locks[root] = l
	}
	return l
}

// SetTreeReadOnly walks dir top-down. With readOnly every write bit is
// cleared; otherwise the owner regains write (and search on directories).
// Symlinks are left alone.
func (m *Manager) SetTreeReadOnly(dir string, readOnly bool) error {
	root := filepath.Clean(dir)
	l := m.lockFor(root)
	l.Lock()
	defer l.Unlock()

	changed := 0
	err := afero.Walk(m.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		mode := info.Mode().Perm()
		var next os.FileMode
		switch {
		case readOnly:
			next = mode &^ writeBits
		case info.IsDir():
			next = mode | ownerRWX
		default:
			next = mode | ownerRW
		}
		if next == mode {
			return nil
		}
		changed++
		return m.fs.Chmod(path, next)
	})
	if err != nil {
		return errs.Wrap(err, errs.CodePermission, "changing tree permissions").
			With("dir", root).
			With("read_only", readOnly)
	}

	logger.Log.Debugw("Tree permissions updated",
		zap.String("dir", root),
		zap.Bool("read_only", readOnly),
		zap.Int("changed", changed),
	)
	return nil
}

// Lock makes dir read-only.
func (m *Manager) Lock(dir string) error {
	return m.SetTreeReadOnly(dir, true)
}

// Unlock makes dir writable again, e.g. before removal.
func (m *Manager) Unlock(dir string) error {
	return m.SetTreeReadOnly(dir, false)
}

// RemoveTree unlocks dir and deletes it. A missing dir is not an error.
func (m *Manager) RemoveTree(dir string) error {
	if _, err := m.fs.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := m.Unlock(dir); err != nil {
		return err
	}
	if err := m.fs.RemoveAll(dir); err != nil {
		return errs.Wrap(err, errs.CodeFilesystem, "removing directory tree").With("dir", dir)
	}
	return nil
}
