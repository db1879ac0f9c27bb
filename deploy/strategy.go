package deploy

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"barnacle/db"
	"barnacle/errs"
	"barnacle/layout"
	"barnacle/loadorder"
	"barnacle/logger"
	"barnacle/overlay"

	"go.uber.org/zap"
)

// Mount describes an attached overlay and what was stacked into it.
type Mount struct {
	Game    db.Game
	Profile db.Profile
	Layers  []loadorder.Layer
	Request overlay.Request
	Handle  *overlay.Handle
}

// Hook runs after the overlay is attached, e.g. to rewrite an engine's
// data manifest. A hook error detaches the overlay again.
type Hook func(ctx context.Context, m Mount) error

// Strategy is the deploy-kind specific part of a deployment.
type Strategy interface {
	Kind() db.DeployKind
	// Target is where the merged view is attached.
	Target(game db.Game) string
	// Prepare makes sure the target can be mounted over.
	Prepare(game db.Game) error
	AfterMount(ctx context.Context, m Mount) error
}

// direct mounts straight over the install directory.
type direct struct {
	kind db.DeployKind
	hook Hook
}

func (s direct) Kind() db.DeployKind { return s.kind }

func (s direct) Target(game db.Game) string { return game.InstallDir }

func (s direct) Prepare(game db.Game) error {
	info, err := os.Stat(game.InstallDir)
	if err != nil {
		return errs.Wrap(err, errs.CodeFilesystem, "install directory is not accessible").
			With("dir", game.InstallDir)
	}
	if !info.IsDir() {
		return errs.New(errs.CodeFilesystem, "install directory is not a directory").
			With("dir", game.InstallDir)
	}
	return nil
}

func (s direct) AfterMount(ctx context.Context, m Mount) error {
	return runHook(ctx, s.hook, m)
}

// staged mounts into the game's staging directory and leaves the install
// directory alone; the engine is pointed at the staging directory by the hook.
type staged struct {
	kind   db.DeployKind
	layout layout.Layout
	hook   Hook
}

func (s staged) Kind() db.DeployKind { return s.kind }

func (s staged) Target(game db.Game) string { return s.layout.StagingDir(game) }

func (s staged) Prepare(game db.Game) error {
	if err := (direct{}).Prepare(game); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Target(game), 0o755); err != nil {
		return errs.Wrap(err, errs.CodeFilesystem, "creating staging directory").
			With("dir", s.Target(game))
	}
	return nil
}

func (s staged) AfterMount(ctx context.Context, m Mount) error {
	return runHook(ctx, s.hook, m)
}

// StrategyFor returns the strategy of kind. OpenMW reads its data from
// paths listed in openmw.cfg, so it is staged; every other kind is mounted
// over the install directory.
func StrategyFor(kind db.DeployKind, l layout.Layout, hook Hook) (Strategy, error) {
	switch kind {
	case db.DeployOpenMW:
		return staged{kind: kind, layout: l, hook: hook}, nil
	case db.DeployOverlay, db.DeployGamebryo, db.DeployCreationEngine, db.DeployBaldursGate3:
		return direct{kind: kind, hook: hook}, nil
	default:
		return nil, errs.Newf(errs.CodeInvalidInput, "unknown deploy kind %q", kind)
	}
}

func runHook(ctx context.Context, hook Hook, m Mount) error {
	if hook == nil {
		return nil
	}
	return hook(ctx, m)
}

// CommandHook runs command through the shell after each mount with the
// deployment described in BARNACLE_* environment variables.
func CommandHook(command string) Hook {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	return func(ctx context.Context, m Mount) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Env = append(os.Environ(),
			"BARNACLE_GAME="+m.Game.Name,
			"BARNACLE_DEPLOY_KIND="+m.Game.DeployKind.String(),
			"BARNACLE_PROFILE="+m.Profile.Name,
			"BARNACLE_INSTALL_DIR="+m.Game.InstallDir,
			"BARNACLE_TARGET="+m.Request.Target,
			"BARNACLE_LOWER="+strings.Join(m.Request.Lower, "\n"),
			"BARNACLE_UPPER="+m.Request.Upper,
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return errs.Wrap(err, errs.CodeDeployFailed, "post-mount hook failed").
				With("output", strings.TrimSpace(string(out)))
		}
		logger.Log.Debugw("Post-mount hook finished", zap.String("game", m.Game.Name), zap.ByteString("output", out))
		return nil
	}
}
