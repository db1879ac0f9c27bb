//go:build !linux

package overlay

import (
	"context"

	"barnacle/errs"
)

// Kernel is unavailable outside Linux; use the fuse backend.
type Kernel struct{}

func (Kernel) Mount(context.Context, Request) (*Handle, error) {
	return nil, errs.New(errs.CodeDeployFailed, "kernel overlay mounts are only supported on linux")
}

func (Kernel) Unmount(context.Context, *Handle) error {
	return errs.New(errs.CodeUndeployFailed, "kernel overlay mounts are only supported on linux")
}
