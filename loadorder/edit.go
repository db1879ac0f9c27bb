package loadorder

import (
	"context"

	"barnacle/db"
	"barnacle/errs"
	"barnacle/logger"

	"go.uber.org/zap"
)

// edit runs fn with the profile's chain under the exclusive lock and inside
// one transaction. fn returns the chain's new order; positions are then
// renumbered 0..n-1. A non-nil check sees the chain first and can refuse the
// edit.
func (r *Resolver) edit(ctx context.Context, profileID uint, check func(chain []Layer) error, fn func(tx *db.Store, profile db.Profile, chain []Layer) ([]db.ModEntry, error)) error {
	l := r.lockFor(profileID)
	l.Lock()
	defer l.Unlock()

	return r.store.Transaction(ctx, func(tx *db.Store) error {
		profile, err := tx.ProfileByID(ctx, profileID)
		if err != nil {
			return err
		}
		chain, err := readChain(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(chain); err != nil {
				return err
			}
		}
		order, err := fn(tx, profile, chain)
		if err != nil {
			return err
		}
		for i := range order {
			if order[i].Position == i && order[i].ID != 0 {
				continue
			}
			order[i].Position = i
			if order[i].ID == 0 {
				if err := tx.CreateEntry(ctx, &order[i]); err != nil {
					return err
				}
				continue
			}
			if err := tx.SaveEntry(ctx, &order[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func entriesOf(chain []Layer) []db.ModEntry {
	out := make([]db.ModEntry, len(chain))
	for i, l := range chain {
		out[i] = l.Entry
	}
	return out
}

func indexOf(chain []Layer, entryID uint) (int, error) {
	for i, l := range chain {
		if l.Entry.ID == entryID {
			return i, nil
		}
	}
	return -1, errs.New(errs.CodeNotFound, "mod entry is not in this profile").
		With("entry", entryID)
}

func checkPosition(position, last int) error {
	if position < 0 || position > last {
		return errs.Newf(errs.CodeInvalidInput, "position %d out of range 0..%d", position, last)
	}
	return nil
}

// newEntry validates that mod may join the chain: same game, not already in it.
func newEntry(ctx context.Context, tx *db.Store, profile db.Profile, chain []Layer, modID uint) (db.ModEntry, error) {
	mod, err := tx.ModByID(ctx, modID)
	if err != nil {
		return db.ModEntry{}, err
	}
	if mod.GameID != profile.GameID {
		return db.ModEntry{}, errs.New(errs.CodeInvalidInput, "mod belongs to another game").
			With("mod", mod.Name).
			With("profile", profile.Name)
	}
	for _, l := range chain {
		if l.Mod.ID == modID {
			return db.ModEntry{}, errs.New(errs.CodeDuplicateName, "mod is already in the load order").
				With("mod", mod.Name).
				With("profile", profile.Name)
		}
	}
	return db.ModEntry{ProfileID: profile.ID, ModID: mod.ID, Enabled: true}, nil
}

// Append adds mod, enabled, at the end of the chain (highest precedence).
func (r *Resolver) Append(ctx context.Context, profileID, modID uint) (db.ModEntry, error) {
	var position int
	err := r.edit(ctx, profileID, nil, func(tx *db.Store, profile db.Profile, chain []Layer) ([]db.ModEntry, error) {
		entry, err := newEntry(ctx, tx, profile, chain, modID)
		if err != nil {
			return nil, err
		}
		position = len(chain)
		return append(entriesOf(chain), entry), nil
	})
	if err != nil {
		return db.ModEntry{}, err
	}
	logger.Log.Infow("Mod appended to load order", zap.Uint("profile", profileID), zap.Uint("mod", modID))
	return r.entryAt(ctx, profileID, position)
}

// Insert adds mod, enabled, at position, shifting later entries up.
func (r *Resolver) Insert(ctx context.Context, profileID, modID uint, position int) (db.ModEntry, error) {
	err := r.edit(ctx, profileID, nil, func(tx *db.Store, profile db.Profile, chain []Layer) ([]db.ModEntry, error) {
		if err := checkPosition(position, len(chain)); err != nil {
			return nil, err
		}
		entry, err := newEntry(ctx, tx, profile, chain, modID)
		if err != nil {
			return nil, err
		}
		order := entriesOf(chain)
		order = append(order[:position], append([]db.ModEntry{entry}, order[position:]...)...)
		return order, nil
	})
	if err != nil {
		return db.ModEntry{}, err
	}
	logger.Log.Infow("Mod inserted into load order",
		zap.Uint("profile", profileID), zap.Uint("mod", modID), zap.Int("position", position))
	return r.entryAt(ctx, profileID, position)
}

// Remove drops an entry from the chain; the mod itself is untouched.
func (r *Resolver) Remove(ctx context.Context, profileID, entryID uint) error {
	err := r.edit(ctx, profileID, nil, func(tx *db.Store, _ db.Profile, chain []Layer) ([]db.ModEntry, error) {
		i, err := indexOf(chain, entryID)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteEntry(ctx, entryID); err != nil {
			return nil, err
		}
		order := entriesOf(chain)
		return append(order[:i], order[i+1:]...), nil
	})
	if err != nil {
		return err
	}
	logger.Log.Infow("Entry removed from load order", zap.Uint("profile", profileID), zap.Uint("entry", entryID))
	return nil
}

// Move places an entry at position, keeping the relative order of the rest.
func (r *Resolver) Move(ctx context.Context, profileID, entryID uint, position int) error {
	return r.move(ctx, profileID, nil, entryID, position)
}

func (r *Resolver) move(ctx context.Context, profileID uint, check func([]Layer) error, entryID uint, position int) error {
	err := r.edit(ctx, profileID, check, func(_ *db.Store, _ db.Profile, chain []Layer) ([]db.ModEntry, error) {
		i, err := indexOf(chain, entryID)
		if err != nil {
			return nil, err
		}
		if err := checkPosition(position, len(chain)-1); err != nil {
			return nil, err
		}
		order := entriesOf(chain)
		moved := order[i]
		order = append(order[:i], order[i+1:]...)
		order = append(order[:position], append([]db.ModEntry{moved}, order[position:]...)...)
		return order, nil
	})
	if err != nil {
		return err
	}
	logger.Log.Infow("Entry moved",
		zap.Uint("profile", profileID), zap.Uint("entry", entryID), zap.Int("position", position))
	return nil
}

// SetEnabled toggles an entry without changing its position.
func (r *Resolver) SetEnabled(ctx context.Context, profileID, entryID uint, enabled bool) error {
	return r.setEnabled(ctx, profileID, nil, entryID, enabled)
}

func (r *Resolver) setEnabled(ctx context.Context, profileID uint, check func([]Layer) error, entryID uint, enabled bool) error {
	return r.edit(ctx, profileID, check, func(tx *db.Store, _ db.Profile, chain []Layer) ([]db.ModEntry, error) {
		i, err := indexOf(chain, entryID)
		if err != nil {
			return nil, err
		}
		order := entriesOf(chain)
		if order[i].Enabled != enabled {
			order[i].Enabled = enabled
			if err := tx.SaveEntry(ctx, &order[i]); err != nil {
				return nil, err
			}
		}
		return order, nil
	})
}

// SetNotes replaces an entry's free-form notes.
func (r *Resolver) SetNotes(ctx context.Context, profileID, entryID uint, notes string) error {
	return r.edit(ctx, profileID, nil, func(tx *db.Store, _ db.Profile, chain []Layer) ([]db.ModEntry, error) {
		i, err := indexOf(chain, entryID)
		if err != nil {
			return nil, err
		}
		order := entriesOf(chain)
		order[i].Notes = notes
		if err := tx.SaveEntry(ctx, &order[i]); err != nil {
			return nil, err
		}
		return order, nil
	})
}

// Editor edits a chain only while it still matches the snapshot the caller
// last read. A mismatch fails with ErrChainMutated and changes nothing.
type Editor struct {
	r        *Resolver
	snapshot []Layer
}

// Expect returns an Editor whose edits are checked against snapshot inside
// the edit's own transaction.
func (r *Resolver) Expect(snapshot []Layer) Editor {
	return Editor{r: r, snapshot: snapshot}
}

func (e Editor) check(profileID uint) func([]Layer) error {
	return func(chain []Layer) error {
		return compareChain(profileID, chain, e.snapshot)
	}
}

func (e Editor) Move(ctx context.Context, profileID, entryID uint, position int) error {
	return e.r.move(ctx, profileID, e.check(profileID), entryID, position)
}

func (e Editor) SetEnabled(ctx context.Context, profileID, entryID uint, enabled bool) error {
	return e.r.setEnabled(ctx, profileID, e.check(profileID), entryID, enabled)
}

func (r *Resolver) entryAt(ctx context.Context, profileID uint, position int) (db.ModEntry, error) {
	chain, err := r.Chain(ctx, profileID)
	if err != nil {
		return db.ModEntry{}, err
	}
	if position >= len(chain) {
		return db.ModEntry{}, errs.New(errs.CodeChainMutated, "entry disappeared after insert")
	}
	return chain[position].Entry, nil
}
