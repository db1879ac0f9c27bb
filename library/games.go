package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"barnacle/db"
	"barnacle/deploy"
	"barnacle/errs"
	"barnacle/layout"
	"barnacle/logger"

	"go.uber.org/zap"
)

// GameSpec describes a game to add.
type GameSpec struct {
	Name       string
	Kind       db.DeployKind
	InstallDir string
	Targets    []string
}

// AddGame records a game and creates its library directory. Either both
// exist afterwards or neither does.
func (l *Library) AddGame(ctx context.Context, spec GameSpec) (db.Game, error) {
	name := strings.TrimSpace(spec.Name)
	slug := layout.Slug(name)
	if slug == "" {
		return db.Game{}, errs.New(errs.CodeInvalidInput, "game name must contain letters or digits").With("name", spec.Name)
	}
	if _, err := deploy.StrategyFor(spec.Kind, l.layout, nil); err != nil {
		return db.Game{}, err
	}
	installDir, err := filepath.Abs(spec.InstallDir)
	if err != nil || spec.InstallDir == "" {
		return db.Game{}, errs.New(errs.CodeInvalidInput, "install directory is required")
	}
	if info, err := os.Stat(installDir); err != nil || !info.IsDir() {
		return db.Game{}, errs.New(errs.CodeInvalidInput, "install directory does not exist").With("dir", installDir)
	}

	game := db.Game{
		Name:       name,
		Slug:       slug,
		DeployKind: spec.Kind,
		InstallDir: installDir,
		Targets:    strings.Join(spec.Targets, "\n"),
	}
	dir := l.layout.GameDir(game)

	created := false
	err = l.store.Transaction(ctx, func(tx *db.Store) error {
		if err := checkGameUnique(ctx, tx, name, slug, 0); err != nil {
			return err
		}
		if err := tx.CreateGame(ctx, &game); err != nil {
			return err
		}
		if _, err := os.Stat(dir); err == nil {
			return errs.New(errs.CodeDuplicateName, "game directory already exists").With("dir", dir)
		}
		created = true
		return makeDirs(l.layout.ModsDir(game), l.layout.ProfilesDir(game))
	})
	if err != nil {
		if created {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				logger.Log.Errorw("Failed to remove game directory", zap.String("dir", dir), zap.Error(rmErr))
			}
		}
		return db.Game{}, err
	}

	logger.Log.Infow("Game added",
		zap.String("game", game.Name),
		zap.String("kind", game.DeployKind.String()),
		zap.String("install_dir", game.InstallDir),
	)
	return game, nil
}

// checkGameUnique fails when another game than except already uses name, or
// a name that slugs the same.
func checkGameUnique(ctx context.Context, tx *db.Store, name, slug string, except uint) error {
	for _, lookup := range []func() (db.Game, error){
		func() (db.Game, error) { return tx.GameByName(ctx, name) },
		func() (db.Game, error) { return tx.GameBySlug(ctx, slug) },
	} {
		existing, err := lookup()
		if err == nil && existing.ID == except {
			continue
		}
		if err == nil {
			return errs.New(errs.CodeDuplicateName, "a game with this name already exists").
				With("name", name).
				With("existing", existing.Name)
		}
		if !errs.HasCode(err, errs.CodeNotFound) {
			return err
		}
	}
	return nil
}

// GameEdit lists the fields EditGame changes; nil ones are kept.
type GameEdit struct {
	Name *string
	Kind *db.DeployKind
}

// EditGame renames game or changes its deploy kind. The slug, and with it the
// library directory, keeps the value the game was added with. It is rejected
// while any of the game's profiles is deployed.
func (l *Library) EditGame(ctx context.Context, game db.Game, edit GameEdit) (db.Game, error) {
	var name string
	if edit.Name != nil {
		name = strings.TrimSpace(*edit.Name)
		if layout.Slug(name) == "" {
			return db.Game{}, errs.New(errs.CodeInvalidInput, "game name must contain letters or digits").With("name", *edit.Name)
		}
	}
	if edit.Kind != nil {
		if _, err := deploy.StrategyFor(*edit.Kind, l.layout, nil); err != nil {
			return db.Game{}, err
		}
	}

	var updated db.Game
	deployed := func(deploy.Active) bool { return true }
	err := l.deployer.Guard(ctx, game.ID, deployed, func() error {
		return l.store.Transaction(ctx, func(tx *db.Store) error {
			current, err := tx.GameByID(ctx, game.ID)
			if err != nil {
				return err
			}
			if edit.Name != nil {
				if err := checkGameUnique(ctx, tx, name, layout.Slug(name), current.ID); err != nil {
					return err
				}
				current.Name = name
			}
			if edit.Kind != nil {
				current.DeployKind = *edit.Kind
			}
			if err := tx.UpdateGame(ctx, &current); err != nil {
				return err
			}
			updated = current
			return nil
		})
	})
	if err != nil {
		return db.Game{}, err
	}
	logger.Log.Infow("Game edited",
		zap.String("game", updated.Name),
		zap.String("was", game.Name),
		zap.String("kind", updated.DeployKind.String()),
	)
	return updated, nil
}

func makeDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(err, errs.CodeFilesystem, "creating directory").With("dir", dir)
		}
	}
	return nil
}

func (l *Library) Games(ctx context.Context) ([]db.Game, error) {
	return l.store.Games(ctx)
}

// Game looks a game up by name, falling back to its slug.
func (l *Library) Game(ctx context.Context, name string) (db.Game, error) {
	g, err := l.store.GameByName(ctx, name)
	if errs.HasCode(err, errs.CodeNotFound) {
		g, err = l.store.GameBySlug(ctx, layout.Slug(name))
	}
	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			e.With("game", name)
		}
		return db.Game{}, err
	}
	return g, nil
}

// RemoveGame deletes a game's library directory, then its records. It is
// rejected while any of its profiles is deployed.
func (l *Library) RemoveGame(ctx context.Context, name string) error {
	game, err := l.Game(ctx, name)
	if err != nil {
		return err
	}
	deployed := func(deploy.Active) bool { return true }
	err = l.deployer.Guard(ctx, game.ID, deployed, func() error {
		if err := l.perms.RemoveTree(l.layout.GameDir(game)); err != nil {
			return err
		}
		return l.store.DeleteGame(ctx, game.ID)
	})
	if err != nil {
		return err
	}
	logger.Log.Infow("Game removed", zap.String("game", game.Name))
	return nil
}
