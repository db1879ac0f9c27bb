package overlay

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"barnacle/config"
	"barnacle/errs"
	"barnacle/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fuse mounts with fuse-overlayfs, which works without root.
type Fuse struct {
	Binary     string // fuse-overlayfs
	Fusermount string // fusermount3
}

func (f Fuse) binary() string {
	if f.Binary == "" {
		return "fuse-overlayfs"
	}
	return f.Binary
}

func (f Fuse) fusermount() string {
	if f.Fusermount == "" {
		return "fusermount3"
	}
	return f.Fusermount
}

func (f Fuse) Mount(ctx context.Context, req Request) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := run(ctx, f.binary(), "-o", Options(req), req.Target); err != nil {
		return nil, errs.Wrap(err, errs.CodeDeployFailed, "fuse-overlayfs mount failed").
			With("target", req.Target)
	}
	h := &Handle{ID: uuid.NewString(), Backend: config.BackendFuse, Target: req.Target}
	logger.Log.Infow("Overlay mounted", zap.String("target", req.Target), zap.String("handle", h.ID))
	return h, nil
}

func (f Fuse) Unmount(ctx context.Context, h *Handle) error {
	if err := run(ctx, f.fusermount(), "-u", h.Target); err != nil {
		return errs.Wrap(err, errs.CodeUndeployFailed, "fuse unmount failed").
			With("target", h.Target)
	}
	logger.Log.Infow("Overlay unmounted", zap.String("target", h.Target), zap.String("handle", h.ID))
	return nil
}

// run executes name and folds its stderr into the error. The helper always
// runs to completion; cancelling ctx does not kill it.
func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(context.WithoutCancel(ctx), name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	logger.Log.Debugw("Running mount helper", zap.String("cmd", name), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
