package library

import (
	"context"

	"barnacle/db"
	"barnacle/deploy"
	"barnacle/loadorder"
	"barnacle/overlay"
)

// Import adds the archive or directory at source to game as a new mod.
func (l *Library) Import(ctx context.Context, game db.Game, source, name string) (db.Mod, error) {
	return l.mods.Import(ctx, game, source, name)
}

func (l *Library) Mods(ctx context.Context, game db.Game) ([]db.Mod, error) {
	return l.store.Mods(ctx, game.ID)
}

func (l *Library) Mod(ctx context.Context, game db.Game, name string) (db.Mod, error) {
	return l.store.ModByName(ctx, game.ID, name)
}

// ContentDir is where mod's payload lives.
func (l *Library) ContentDir(game db.Game, mod db.Mod) string {
	return l.mods.ContentDir(game, mod)
}

// RemoveMod deletes a mod that no load order references any more.
func (l *Library) RemoveMod(ctx context.Context, game db.Game, mod db.Mod) error {
	return l.mods.Remove(ctx, game, mod)
}

// Resolve returns profile's deployable stack, lowest precedence first.
func (l *Library) Resolve(ctx context.Context, profile db.Profile) ([]loadorder.Layer, error) {
	return l.order.Resolve(ctx, profile.ID)
}

// Chain returns profile's full load order, disabled entries included.
func (l *Library) Chain(ctx context.Context, profile db.Profile) ([]loadorder.Layer, error) {
	return l.order.Chain(ctx, profile.ID)
}

// Deploy mounts profile over its game.
func (l *Library) Deploy(ctx context.Context, profile db.Profile) (deploy.Mount, error) {
	game, err := l.store.GameByID(ctx, profile.GameID)
	if err != nil {
		return deploy.Mount{}, err
	}
	return l.deployer.Deploy(ctx, game, profile)
}

// Undeploy detaches profile; it does nothing when profile is not mounted.
func (l *Library) Undeploy(ctx context.Context, profile db.Profile) error {
	game, err := l.store.GameByID(ctx, profile.GameID)
	if err != nil {
		return err
	}
	return l.deployer.Undeploy(ctx, game, profile)
}

// Redeploy detaches profile if it is mounted and mounts it again with the
// current load order.
func (l *Library) Redeploy(ctx context.Context, profile db.Profile) (deploy.Mount, error) {
	if err := l.Undeploy(ctx, profile); err != nil {
		return deploy.Mount{}, err
	}
	return l.Deploy(ctx, profile)
}

// Preview lists the files profile's merged view would contain.
func (l *Library) Preview(ctx context.Context, profile db.Profile) ([]overlay.Source, error) {
	game, err := l.store.GameByID(ctx, profile.GameID)
	if err != nil {
		return nil, err
	}
	return l.deployer.Preview(ctx, game, profile)
}

// Status reports game's mount state and the mounted profile, if any,
// including mounts made by other processes since this one started.
func (l *Library) Status(ctx context.Context, game db.Game) (deploy.State, *db.Profile, error) {
	if err := l.deployer.Refresh(ctx, game.ID); err != nil {
		return deploy.Unmounted, nil, err
	}
	state := l.deployer.State(game.ID)
	active, ok := l.deployer.Active(game.ID)
	if !ok {
		return state, nil, nil
	}
	p, err := l.store.ProfileByID(ctx, active.ProfileID)
	if err != nil {
		return state, nil, err
	}
	return state, &p, nil
}
