package library

import (
	"context"
	"os"
	"strings"

	"barnacle/db"
	"barnacle/deploy"
	"barnacle/errs"
	"barnacle/layout"
	"barnacle/logger"

	"go.uber.org/zap"
)

// AddProfile records a profile and creates its overlay scratch directories.
// They are created here once and reused by every deploy.
func (l *Library) AddProfile(ctx context.Context, game db.Game, name string) (db.Profile, error) {
	name = strings.TrimSpace(name)
	slug := layout.Slug(name)
	if slug == "" {
		return db.Profile{}, errs.New(errs.CodeInvalidInput, "profile name must contain letters or digits").With("name", name)
	}

	profile := db.Profile{GameID: game.ID, Name: name, Slug: slug}
	dir := l.layout.ProfileDir(game, profile)

	created := false
	err := l.store.Transaction(ctx, func(tx *db.Store) error {
		if err := checkProfileUnique(ctx, tx, game, name, slug, 0); err != nil {
			return err
		}
		if err := tx.CreateProfile(ctx, &profile); err != nil {
			return err
		}
		if _, err := os.Stat(dir); err == nil {
			return errs.New(errs.CodeDuplicateName, "profile directory already exists").With("dir", dir)
		}
		created = true
		return makeDirs(l.layout.UpperDir(game, profile), l.layout.WorkDir(game, profile))
	})
	if err != nil {
		if created {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				logger.Log.Errorw("Failed to remove profile directory", zap.String("dir", dir), zap.Error(rmErr))
			}
		}
		return db.Profile{}, err
	}

	logger.Log.Infow("Profile added", zap.String("game", game.Name), zap.String("profile", profile.Name))
	return profile, nil
}

func checkProfileUnique(ctx context.Context, tx *db.Store, game db.Game, name, slug string, except uint) error {
	same, err := tx.ProfileByName(ctx, game.ID, name)
	if err == nil && same.ID != except {
		return errs.New(errs.CodeDuplicateName, "a profile with this name already exists").
			With("game", game.Name).
			With("profile", name)
	}
	if err != nil && !errs.HasCode(err, errs.CodeNotFound) {
		return err
	}
	existing, err := tx.ProfileBySlug(ctx, game.ID, slug)
	if err == nil && existing.ID != except {
		return errs.New(errs.CodeDuplicateName, "profile name clashes with an existing profile").
			With("game", game.Name).
			With("profile", name).
			With("existing", existing.Name)
	}
	if err != nil && !errs.HasCode(err, errs.CodeNotFound) {
		return err
	}
	return nil
}

// RenameProfile gives profile a new display name. Its slug and directory stay
// as they were. It is rejected while any profile of game is deployed.
func (l *Library) RenameProfile(ctx context.Context, game db.Game, profile db.Profile, name string) (db.Profile, error) {
	name = strings.TrimSpace(name)
	if layout.Slug(name) == "" {
		return db.Profile{}, errs.New(errs.CodeInvalidInput, "profile name must contain letters or digits").With("name", name)
	}

	var renamed db.Profile
	deployed := func(deploy.Active) bool { return true }
	err := l.deployer.Guard(ctx, game.ID, deployed, func() error {
		return l.store.Transaction(ctx, func(tx *db.Store) error {
			current, err := tx.ProfileByID(ctx, profile.ID)
			if err != nil {
				return err
			}
			if err := checkProfileUnique(ctx, tx, game, name, layout.Slug(name), current.ID); err != nil {
				return err
			}
			current.Name = name
			if err := tx.UpdateProfile(ctx, &current); err != nil {
				return err
			}
			renamed = current
			return nil
		})
	})
	if err != nil {
		return db.Profile{}, err
	}
	logger.Log.Infow("Profile renamed", zap.String("game", game.Name), zap.String("profile", name), zap.String("was", profile.Name))
	return renamed, nil
}

func (l *Library) Profiles(ctx context.Context, game db.Game) ([]db.Profile, error) {
	return l.store.Profiles(ctx, game.ID)
}

// Profile looks a profile of game up by name, falling back to its slug.
func (l *Library) Profile(ctx context.Context, game db.Game, name string) (db.Profile, error) {
	p, err := l.store.ProfileByName(ctx, game.ID, name)
	if errs.HasCode(err, errs.CodeNotFound) {
		p, err = l.store.ProfileBySlug(ctx, game.ID, layout.Slug(name))
	}
	return p, err
}

// RemoveProfile deletes the profile's directory, its load order and the
// profile record. A deployed profile must be undeployed first.
func (l *Library) RemoveProfile(ctx context.Context, game db.Game, profile db.Profile) error {
	mounted := func(a deploy.Active) bool { return a.ProfileID == profile.ID }
	err := l.deployer.Guard(ctx, game.ID, mounted, func() error {
		unlock := l.order.Exclusive(profile.ID)
		defer unlock()
		if err := l.perms.RemoveTree(l.layout.ProfileDir(game, profile)); err != nil {
			return err
		}
		return l.store.DeleteProfile(ctx, profile.ID)
	})
	if err != nil {
		return err
	}
	logger.Log.Infow("Profile removed", zap.String("game", game.Name), zap.String("profile", profile.Name))
	return nil
}

// GameOf returns the game profile belongs to.
func (l *Library) GameOf(ctx context.Context, profile db.Profile) (db.Game, error) {
	return l.store.GameByID(ctx, profile.GameID)
}
