// Package overlay mounts union filesystems: ordered read-only lower
// directories plus a writable upper directory merged at a target path.
package overlay

import (
	"context"
	"fmt"
	"strings"

	"barnacle/config"
	"barnacle/errs"
)

// Request describes one overlay mount. Lower is in ascending precedence:
// Lower[0] is the base and the last entry wins on conflicting paths.
type Request struct {
	Lower  []string
	Upper  string
	Work   string
	Target string
}

// Validate checks that the request is complete.
func (r Request) Validate() error {
	switch {
	case len(r.Lower) == 0:
		return errs.New(errs.CodeInvalidInput, "overlay needs at least one lower directory")
	case r.Upper == "" || r.Work == "":
		return errs.New(errs.CodeInvalidInput, "overlay needs upper and work directories")
	case r.Target == "":
		return errs.New(errs.CodeInvalidInput, "overlay needs a target")
	}
	return nil
}

// Handle identifies an attached mount.
type Handle struct {
	ID      string
	Backend string
	Target  string
}

// Mounter attaches and detaches overlays. Both calls block until the
// underlying primitive returns; an in-flight mount is never cancelled.
type Mounter interface {
	Mount(ctx context.Context, req Request) (*Handle, error)
	Unmount(ctx context.Context, h *Handle) error
}

// New returns the Mounter selected by cfg.MountBackend.
func New(cfg config.Config) (Mounter, error) {
	switch cfg.MountBackend {
	case config.BackendKernel:
		return Kernel{}, nil
	case config.BackendFuse, "":
		return Fuse{Binary: cfg.FuseOverlayFS, Fusermount: cfg.Fusermount}, nil
	default:
		return nil, errs.Newf(errs.CodeInvalidInput, "unknown mount backend %q", cfg.MountBackend)
	}
}

// escapeOption escapes the characters overlayfs treats as separators in
// its mount options.
func escapeOption(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `,`, `\,`)
	return r.Replace(path)
}

// Options renders req as overlayfs mount data. lowerdir is listed top-most
// first, the reverse of Request.Lower.
func Options(req Request) string {
	lower := make([]string, len(req.Lower))
	for i, dir := range req.Lower {
		lower[len(req.Lower)-1-i] = escapeOption(dir)
	}
	return fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		strings.Join(lower, ":"), escapeOption(req.Upper), escapeOption(req.Work))
}
