package cmd

import (
	"context"
	"strconv"

	"barnacle/config"
	"barnacle/db"
	"barnacle/errs"
	"barnacle/library"
	"barnacle/loadorder"
	"barnacle/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// bootstrap handles shared initialization logic for commands. Tests swap it
// for a library over a fake mounter.
var bootstrap = func(ctx context.Context) (*library.Library, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return nil, err
	}
	lib, err := library.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Log.Debugw("Library ready", zap.String("root", cfg.LibraryDir))
	return lib, nil
}

// withLibrary adapts fn into a cobra RunE that opens the library first and
// closes it afterwards.
func withLibrary(fn func(cmd *cobra.Command, lib *library.Library, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		lib, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if err := lib.Close(); err != nil {
				logger.Log.Warnw("Failed to close library", zap.Error(err))
			}
		}()
		return fn(cmd, lib, args)
	}
}

// selectGame picks the game a command operates on: --game, then the current
// profile's game, then the only game in the library.
func selectGame(ctx context.Context, lib *library.Library) (db.Game, error) {
	if gameFlag != "" {
		return lib.Game(ctx, gameFlag)
	}
	if current, ok, err := lib.CurrentProfile(ctx); err != nil {
		return db.Game{}, err
	} else if ok {
		return lib.GameOf(ctx, current)
	}
	games, err := lib.Games(ctx)
	if err != nil {
		return db.Game{}, err
	}
	if len(games) == 1 {
		return games[0], nil
	}
	return db.Game{}, errs.New(errs.CodeInvalidInput, "no game selected, pass --game")
}

// selectProfile picks the profile a command operates on: --profile within the
// selected game, or the current profile when it belongs to that game.
func selectProfile(ctx context.Context, lib *library.Library) (db.Game, db.Profile, error) {
	game, err := selectGame(ctx, lib)
	if err != nil {
		return db.Game{}, db.Profile{}, err
	}
	if profileFlag != "" {
		p, err := lib.Profile(ctx, game, profileFlag)
		return game, p, err
	}
	current, ok, err := lib.CurrentProfile(ctx)
	if err != nil {
		return db.Game{}, db.Profile{}, err
	}
	if !ok || current.GameID != game.ID {
		return db.Game{}, db.Profile{}, errs.New(errs.CodeInvalidInput, "no profile selected, pass --profile or run 'profile use'").
			With("game", game.Name)
	}
	return game, current, nil
}

func parsePosition(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errs.New(errs.CodeInvalidInput, "position must be a non-negative integer").With("position", s)
	}
	return n, nil
}

// layerAt returns the chain entry shown at position by 'order list'.
func layerAt(ctx context.Context, lib *library.Library, profile db.Profile, arg string) (loadorder.Layer, error) {
	pos, err := parsePosition(arg)
	if err != nil {
		return loadorder.Layer{}, err
	}
	chain, err := lib.Chain(ctx, profile)
	if err != nil {
		return loadorder.Layer{}, err
	}
	if pos >= len(chain) {
		return loadorder.Layer{}, errs.Newf(errs.CodeInvalidInput, "position out of range (load order has %d entries)", len(chain)).
			With("position", pos)
	}
	return chain[pos], nil
}
