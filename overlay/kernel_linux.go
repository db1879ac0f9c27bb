//go:build linux

package overlay

import (
	"context"

	"barnacle/config"
	"barnacle/errs"
	"barnacle/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Kernel mounts through the in-kernel overlay filesystem. It needs
// CAP_SYS_ADMIN in the caller's mount namespace.
type Kernel struct{}

func (Kernel) Mount(_ context.Context, req Request) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	data := Options(req)
	if err := unix.Mount("overlay", req.Target, "overlay", 0, data); err != nil {
		return nil, errs.Wrap(err, errs.CodeDeployFailed, "overlay mount failed").
			With("target", req.Target)
	}
	h := &Handle{ID: uuid.NewString(), Backend: config.BackendKernel, Target: req.Target}
	logger.Log.Infow("Overlay mounted", zap.String("target", req.Target), zap.String("handle", h.ID))
	return h, nil
}

func (Kernel) Unmount(_ context.Context, h *Handle) error {
	if err := unix.Unmount(h.Target, 0); err != nil {
		return errs.Wrap(err, errs.CodeUndeployFailed, "overlay unmount failed").
			With("target", h.Target)
	}
	logger.Log.Infow("Overlay unmounted", zap.String("target", h.Target), zap.String("handle", h.ID))
	return nil
}
