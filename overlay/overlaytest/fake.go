// Package overlaytest provides an in-process Mounter for tests that cannot
// mount real filesystems.
package overlaytest

import (
	"context"
	"sync"

	"barnacle/errs"
	"barnacle/overlay"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Mounter records mounts instead of performing them. View exposes what a
// real overlay would show at a target.
type Mounter struct {
	Fs afero.Fs

	mu          sync.Mutex
	mounted     map[string]overlay.Request
	history     []overlay.Request
	mountErr    error
	unmountErr  error
	mountGate   chan struct{}
	mountCalled chan struct{}
}

func New() *Mounter {
	return &Mounter{Fs: afero.NewOsFs(), mounted: make(map[string]overlay.Request)}
}

// FailMount makes every following Mount return err (nil clears it).
func (m *Mounter) FailMount(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mountErr = err
}

// FailUnmount makes every following Unmount return err (nil clears it).
func (m *Mounter) FailUnmount(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmountErr = err
}

// Block makes Mount wait until the returned release func is called. called
// is closed once a Mount is waiting.
func (m *Mounter) Block() (called <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mountGate = make(chan struct{})
	m.mountCalled = make(chan struct{})
	gate := m.mountGate
	var once sync.Once
	return m.mountCalled, func() { once.Do(func() { close(gate) }) }
}

func (m *Mounter) Mount(_ context.Context, req overlay.Request) (*overlay.Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	gate, called := m.mountGate, m.mountCalled
	m.mountGate, m.mountCalled = nil, nil
	m.mu.Unlock()
	if gate != nil {
		close(called)
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, req)
	if m.mountErr != nil {
		return nil, errs.Wrap(m.mountErr, errs.CodeDeployFailed, "fake mount failed")
	}
	if _, ok := m.mounted[req.Target]; ok {
		return nil, errs.New(errs.CodeDeployFailed, "target is already a mount point").With("target", req.Target)
	}
	m.mounted[req.Target] = req
	return &overlay.Handle{ID: uuid.NewString(), Backend: "fake", Target: req.Target}, nil
}

// Unmount leaves the target attached when a failure is injected, like a
// busy mount point.
func (m *Mounter) Unmount(_ context.Context, h *overlay.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmountErr != nil {
		return errs.Wrap(m.unmountErr, errs.CodeUndeployFailed, "fake unmount failed")
	}
	if _, ok := m.mounted[h.Target]; !ok {
		return errs.New(errs.CodeUndeployFailed, "target is not mounted").With("target", h.Target)
	}
	delete(m.mounted, h.Target)
	return nil
}

// Mounted returns the request currently attached at target.
func (m *Mounter) Mounted(target string) (overlay.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.mounted[target]
	return req, ok
}

// Count returns the number of attached mounts.
func (m *Mounter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mounted)
}

// History returns every request passed to Mount, including failed ones.
func (m *Mounter) History() []overlay.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]overlay.Request(nil), m.history...)
}

// View is the merged filesystem at target, or nil when nothing is mounted.
func (m *Mounter) View(target string) afero.Fs {
	req, ok := m.Mounted(target)
	if !ok {
		return nil
	}
	return overlay.MergedFs(m.Fs, req)
}
