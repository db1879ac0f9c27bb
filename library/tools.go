package library

import (
	"context"
	"io"
	"os/exec"
	"strings"

	"barnacle/db"
	"barnacle/deploy"
	"barnacle/errs"
	"barnacle/logger"

	"go.uber.org/zap"
)

// AddTool registers an external program (a launcher, script extender or
// editor) to be run from the game's deploy target.
func (l *Library) AddTool(ctx context.Context, game db.Game, name, path, args string) (db.Tool, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(path) == "" {
		return db.Tool{}, errs.New(errs.CodeInvalidInput, "tool name and path are required")
	}
	if _, err := l.store.ToolByName(ctx, game.ID, name); err == nil {
		return db.Tool{}, errs.New(errs.CodeDuplicateName, "a tool with this name already exists").
			With("game", game.Name).
			With("tool", name)
	} else if !errs.HasCode(err, errs.CodeNotFound) {
		return db.Tool{}, err
	}

	tool := db.Tool{GameID: game.ID, Name: name, Path: path, Args: args}
	if err := l.store.CreateTool(ctx, &tool); err != nil {
		return db.Tool{}, err
	}
	logger.Log.Infow("Tool added", zap.String("game", game.Name), zap.String("tool", name), zap.String("path", path))
	return tool, nil
}

func (l *Library) Tools(ctx context.Context, game db.Game) ([]db.Tool, error) {
	return l.store.Tools(ctx, game.ID)
}

func (l *Library) RemoveTool(ctx context.Context, game db.Game, name string) error {
	tool, err := l.store.ToolByName(ctx, game.ID, name)
	if err != nil {
		return err
	}
	return l.store.DeleteTool(ctx, tool.ID)
}

// RunTool runs the named tool with the deploy target as working directory
// and waits for it to exit. Output goes to stdout and stderr.
func (l *Library) RunTool(ctx context.Context, game db.Game, name string, stdout, stderr io.Writer) error {
	tool, err := l.store.ToolByName(ctx, game.ID, name)
	if err != nil {
		return err
	}
	strategy, err := deploy.StrategyFor(game.DeployKind, l.layout, nil)
	if err != nil {
		return err
	}
	log := logger.Log.With(zap.String("game", game.Name), zap.String("tool", tool.Name))
	if err := l.deployer.Refresh(ctx, game.ID); err != nil {
		return err
	}
	if _, ok := l.deployer.Active(game.ID); !ok {
		log.Warnw("Running tool without a deployed profile")
	}

	cmd := exec.CommandContext(ctx, tool.Path, strings.Fields(tool.Args)...)
	cmd.Dir = strategy.Target(game)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	log.Infow("Running tool", zap.String("path", tool.Path), zap.String("dir", cmd.Dir))
	if err := cmd.Run(); err != nil {
		return errs.Wrap(err, errs.CodeFilesystem, "tool failed").
			With("tool", tool.Name).
			With("path", tool.Path)
	}
	return nil
}
