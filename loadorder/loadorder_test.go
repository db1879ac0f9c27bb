package loadorder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"barnacle/db"
	"barnacle/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *db.Store
	r       *Resolver
	game    db.Game
	profile db.Profile
	mods    []db.Mod
}

func newFixture(t *testing.T, modNames ...string) *fixture {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	ctx := context.Background()
	store := db.NewStore(gdb)

	f := &fixture{store: store, r: New(store)}
	f.game = db.Game{Name: "Morrowind", Slug: "morrowind", DeployKind: db.DeployOpenMW}
	require.NoError(t, store.CreateGame(ctx, &f.game))
	f.profile = db.Profile{GameID: f.game.ID, Name: "Main", Slug: "main"}
	require.NoError(t, store.CreateProfile(ctx, &f.profile))
	for _, name := range modNames {
		m := db.Mod{UID: name + "-uid", GameID: f.game.ID, Name: name}
		require.NoError(t, store.CreateMod(ctx, &m))
		f.mods = append(f.mods, m)
	}
	return f
}

func names(layers []Layer) []string {
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = l.Mod.Name
	}
	return out
}

func (f *fixture) appendAll(t *testing.T) []db.ModEntry {
	t.Helper()
	var entries []db.ModEntry
	for _, m := range f.mods {
		e, err := f.r.Append(context.Background(), f.profile.ID, m.ID)
		require.NoError(t, err)
		entries = append(entries, e)
	}
	return entries
}

func TestResolveFollowsChainOrder(t *testing.T) {
	f := newFixture(t, "Graphics Overhaul", "Quest Mod", "Patch")
	ctx := context.Background()
	entries := f.appendAll(t)

	for i, e := range entries {
		assert.Equal(t, i, e.Position)
		assert.True(t, e.Enabled)
	}

	got, err := f.r.Resolve(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Graphics Overhaul", "Quest Mod", "Patch"}, names(got))

	// Reordering is reflected by the next resolve.
	require.NoError(t, f.r.Move(ctx, f.profile.ID, entries[2].ID, 0))
	got, err = f.r.Resolve(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Patch", "Graphics Overhaul", "Quest Mod"}, names(got))

	require.NoError(t, f.r.Move(ctx, f.profile.ID, entries[2].ID, 2))
	got, err = f.r.Resolve(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Graphics Overhaul", "Quest Mod", "Patch"}, names(got))
}

func TestDisableKeepsPosition(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()
	entries := f.appendAll(t)

	before, err := f.r.Resolve(ctx, f.profile.ID)
	require.NoError(t, err)

	require.NoError(t, f.r.SetEnabled(ctx, f.profile.ID, entries[1].ID, false))

	resolved, err := f.r.Resolve(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, names(resolved))

	chain, err := f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names(chain))
	assert.False(t, chain[1].Entry.Enabled)

	require.NoError(t, f.r.SetEnabled(ctx, f.profile.ID, entries[1].ID, true))
	after, err := f.r.Resolve(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, names(before), names(after))
}

func TestInsertAndRemoveRenumber(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()

	a, err := f.r.Append(ctx, f.profile.ID, f.mods[0].ID)
	require.NoError(t, err)
	_, err = f.r.Append(ctx, f.profile.ID, f.mods[2].ID)
	require.NoError(t, err)

	b, err := f.r.Insert(ctx, f.profile.ID, f.mods[1].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Position)

	chain, err := f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names(chain))

	require.NoError(t, f.r.Remove(ctx, f.profile.ID, a.ID))
	chain, err = f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, names(chain))
	for i, l := range chain {
		assert.Equal(t, i, l.Entry.Position)
	}
}

func TestEditValidation(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	entries := f.appendAll(t)

	_, err := f.r.Append(ctx, f.profile.ID, f.mods[0].ID)
	assert.True(t, errors.Is(err, errs.ErrDuplicateName))

	_, err = f.r.Insert(ctx, f.profile.ID, f.mods[0].ID, 5)
	assert.True(t, errs.HasCode(err, errs.CodeInvalidInput))

	assert.True(t, errs.HasCode(f.r.Move(ctx, f.profile.ID, entries[0].ID, 1), errs.CodeInvalidInput))
	assert.True(t, errs.HasCode(f.r.Remove(ctx, f.profile.ID, 999), errs.CodeNotFound))

	other := db.Game{Name: "Skyrim", Slug: "skyrim"}
	require.NoError(t, f.store.CreateGame(ctx, &other))
	foreign := db.Mod{UID: "foreign", GameID: other.ID, Name: "SkyUI"}
	require.NoError(t, f.store.CreateMod(ctx, &foreign))

	_, err = f.r.Append(ctx, f.profile.ID, foreign.ID)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestSetNotes(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	entries := f.appendAll(t)

	require.NoError(t, f.r.SetNotes(ctx, f.profile.ID, entries[0].ID, "load after patches"))
	chain, err := f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "load after patches", chain[0].Entry.Notes)
}

func TestDanglingModAbortsResolve(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	f.appendAll(t)

	// Simulate store corruption: the mod row vanishes under its entry.
	require.NoError(t, f.store.DeleteMod(ctx, f.mods[0].ID))

	_, err := f.r.Resolve(ctx, f.profile.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrBrokenChain))
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestOutOfSequencePositionsAbortResolve(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	entries := f.appendAll(t)

	e := entries[1]
	e.Position = 7
	require.NoError(t, f.store.SaveEntry(ctx, &e))

	_, err := f.r.Chain(ctx, f.profile.ID)
	assert.True(t, errs.HasCode(err, errs.CodeBrokenChain))
}

func TestVerifyDetectsMutation(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	entries := f.appendAll(t)

	snapshot, err := f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)
	require.NoError(t, f.r.Verify(ctx, f.profile.ID, snapshot))

	require.NoError(t, f.r.Move(ctx, f.profile.ID, entries[1].ID, 0))
	err = f.r.Verify(ctx, f.profile.ID, snapshot)
	assert.True(t, errors.Is(err, errs.ErrChainMutated))
	assert.Equal(t, errs.KindConcurrency, errs.KindOf(err))
}

func TestExpectRefusesStaleEdits(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()
	entries := f.appendAll(t)

	snapshot, err := f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)
	require.NoError(t, f.r.Expect(snapshot).Move(ctx, f.profile.ID, entries[0].ID, 2))

	chain, err := f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, names(chain))

	// snapshot is stale now.
	err = f.r.Expect(snapshot).SetEnabled(ctx, f.profile.ID, entries[1].ID, false)
	assert.True(t, errors.Is(err, errs.ErrChainMutated))
	err = f.r.Expect(snapshot).Move(ctx, f.profile.ID, entries[1].ID, 0)
	assert.True(t, errors.Is(err, errs.ErrChainMutated))

	after, err := f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.Equal(t, names(chain), names(after))
	assert.True(t, after[0].Entry.Enabled, "a refused edit changes nothing")
}

func TestExpectAppliesOneOfRacingEdits(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	entries := f.appendAll(t)
	snapshot, err := f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)

	const n = 8
	results := make(chan error, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.r.Expect(snapshot).SetEnabled(ctx, f.profile.ID, entries[0].ID, false)
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for err := range results {
		if err == nil {
			applied++
			continue
		}
		assert.True(t, errors.Is(err, errs.ErrChainMutated), "got %v", err)
	}
	assert.Equal(t, 1, applied, "every edit after the first sees a changed chain")
}

func TestConcurrentEditsKeepChainConsistent(t *testing.T) {
	f := newFixture(t, "A", "B", "C", "D")
	ctx := context.Background()
	entries := f.appendAll(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			e := entries[i%len(entries)]
			assert.NoError(t, f.r.Move(ctx, f.profile.ID, e.ID, (i*3)%len(entries)))
		}(i)
		go func() {
			defer wg.Done()
			chain, err := f.r.Chain(ctx, f.profile.ID)
			if assert.NoError(t, err) {
				assert.Len(t, chain, len(entries))
			}
		}()
	}
	wg.Wait()

	chain, err := f.r.Chain(ctx, f.profile.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, names(chain))
}
