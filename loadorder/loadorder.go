// Package loadorder reads and edits a profile's ordered ModEntry chain.
//
// Entries carry explicit positions 0..n-1. Reads of one profile run against
// a single store transaction under a shared lock, and every mutation takes
// the profile's exclusive lock, so a reader never sees a half-applied edit.
package loadorder

import (
	"context"
	"sync"

	"barnacle/db"
	"barnacle/errs"
	"barnacle/logger"

	"go.uber.org/zap"
)

// Layer is one resolved position: the mod and the entry that placed it.
type Layer struct {
	Mod   db.Mod
	Entry db.ModEntry
}

// Resolver resolves and edits load orders.
type Resolver struct {
	store *db.Store

	mu    sync.Mutex
	locks map[uint]*sync.RWMutex
}

func New(store *db.Store) *Resolver {
	return &Resolver{store: store, locks: make(map[uint]*sync.RWMutex)}
}

func (r *Resolver) lockFor(profileID uint) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[profileID]
	if !ok {
		l = &sync.RWMutex{}
		r.locks[profileID] = l
	}
	return l
}

// Exclusive blocks chain reads and edits of profileID until unlock is called.
func (r *Resolver) Exclusive(profileID uint) (unlock func()) {
	l := r.lockFor(profileID)
	l.Lock()
	return l.Unlock
}

// Chain returns every entry of the profile, disabled ones included, lowest
// precedence first.
func (r *Resolver) Chain(ctx context.Context, profileID uint) ([]Layer, error) {
	l := r.lockFor(profileID)
	l.RLock()
	defer l.RUnlock()

	var layers []Layer
	err := r.store.Transaction(ctx, func(tx *db.Store) error {
		var err error
		layers, err = readChain(ctx, tx, profileID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return layers, nil
}

// Resolve returns the deployable stack: the chain without disabled entries.
func (r *Resolver) Resolve(ctx context.Context, profileID uint) ([]Layer, error) {
	chain, err := r.Chain(ctx, profileID)
	if err != nil {
		return nil, err
	}
	resolved := Enabled(chain)
	logger.Log.Debugw("Load order resolved",
		zap.Uint("profile", profileID),
		zap.Int("entries", len(chain)),
		zap.Int("enabled", len(resolved)),
	)
	return resolved, nil
}

// Enabled filters layers down to enabled entries, keeping order.
func Enabled(layers []Layer) []Layer {
	out := make([]Layer, 0, len(layers))
	for _, l := range layers {
		if l.Entry.Enabled {
			out = append(out, l)
		}
	}
	return out
}

// Verify fails with ErrChainMutated when the profile's chain no longer
// matches snapshot in entries, order or enabled state.
func (r *Resolver) Verify(ctx context.Context, profileID uint, snapshot []Layer) error {
	current, err := r.Chain(ctx, profileID)
	if err != nil {
		return err
	}
	return compareChain(profileID, current, snapshot)
}

func compareChain(profileID uint, current, snapshot []Layer) error {
	mutated := len(current) != len(snapshot)
	for i := 0; !mutated && i < len(current); i++ {
		c, s := current[i].Entry, snapshot[i].Entry
		mutated = c.ID != s.ID || c.Enabled != s.Enabled
	}
	if mutated {
		return errs.New(errs.CodeChainMutated, "load order changed since it was read").
			With("profile", profileID)
	}
	return nil
}

// readChain loads the chain inside tx. Any entry pointing at a missing mod,
// at another game's mod, or out of sequence aborts the whole read.
func readChain(ctx context.Context, tx *db.Store, profileID uint) ([]Layer, error) {
	profile, err := tx.ProfileByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	entries, err := tx.Entries(ctx, profileID)
	if err != nil {
		return nil, err
	}

	layers := make([]Layer, 0, len(entries))
	for i, e := range entries {
		if e.Position != i {
			return nil, brokenChain("entry out of sequence", profileID, e).
				With("expected_position", i)
		}
		mod, err := tx.ModByID(ctx, e.ModID)
		if errs.HasCode(err, errs.CodeNotFound) {
			return nil, brokenChain("entry references a missing mod", profileID, e)
		}
		if err != nil {
			return nil, err
		}
		if mod.GameID != profile.GameID {
			return nil, brokenChain("entry references another game's mod", profileID, e)
		}
		layers = append(layers, Layer{Mod: mod, Entry: e})
	}
	return layers, nil
}

func brokenChain(msg string, profileID uint, e db.ModEntry) *errs.Error {
	return errs.New(errs.CodeBrokenChain, msg).
		With("profile", profileID).
		With("entry", e.ID).
		With("mod", e.ModID).
		With("position", e.Position)
}
