package modstore

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"barnacle/db"
	"barnacle/errs"
	"barnacle/extract"
	"barnacle/layout"
	"barnacle/perms"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	records *db.Store
	store   *Store
	layout  layout.Layout
	game    db.Game
	tmp     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmp := t.TempDir()
	gdb, err := db.Open(filepath.Join(tmp, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	records := db.NewStore(gdb)
	l := layout.New(filepath.Join(tmp, "library"))
	pm := perms.NewOS()

	game := db.Game{Name: "Morrowind", Slug: "morrowind", DeployKind: db.DeployOpenMW}
	require.NoError(t, records.CreateGame(context.Background(), &game))
	require.NoError(t, os.MkdirAll(l.ModsDir(game), 0o755))

	// Locked trees must be writable again before TempDir cleanup.
	t.Cleanup(func() {
		entries, _ := os.ReadDir(l.ModsDir(game))
		for _, e := range entries {
			_ = pm.Unlock(filepath.Join(l.ModsDir(game), e.Name()))
		}
	})

	return &fixture{
		records: records,
		store:   New(records, l, pm, extract.New()),
		layout:  l,
		game:    game,
		tmp:     tmp,
	}
}

func (f *fixture) zip(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(f.tmp, name)
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()
	zw := zip.NewWriter(out)
	for n, content := range files {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func (f *fixture) modDirs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.layout.ModsDir(f.game))
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestImportLocksContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	archive := f.zip(t, "Graphics Overhaul.zip", map[string]string{"Textures/rock.dds": "rock"})

	mod, err := f.store.Import(ctx, f.game, archive, "")
	require.NoError(t, err)
	assert.Equal(t, "Graphics Overhaul", mod.Name)
	assert.NotEmpty(t, mod.UID)
	assert.Equal(t, []string{mod.UID}, f.modDirs(t))

	file := filepath.Join(f.store.ContentDir(f.game, mod), "Textures", "rock.dds")
	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "rock", string(got))

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Zero(t, info.Mode().Perm()&0o222, "imported payload must be read-only")

	stored, err := f.records.ModByName(ctx, f.game.ID, "Graphics Overhaul")
	require.NoError(t, err)
	assert.Equal(t, mod.UID, stored.UID)
}

func TestImportCorruptArchiveLeavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	corrupt := filepath.Join(f.tmp, "broken.zip")
	require.NoError(t, os.WriteFile(corrupt, []byte("PK\x03\x04 definitely not a zip"), 0o644))

	_, err := f.store.Import(ctx, f.game, corrupt, "Broken")
	require.Error(t, err)
	assert.Equal(t, errs.KindIO, errs.KindOf(err))

	mods, err := f.records.Mods(ctx, f.game.ID)
	require.NoError(t, err)
	assert.Empty(t, mods)
	assert.Empty(t, f.modDirs(t))
}

func TestImportMissingSourceLeavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Import(ctx, f.game, filepath.Join(f.tmp, "missing.zip"), "")
	require.Error(t, err)

	mods, err := f.records.Mods(ctx, f.game.ID)
	require.NoError(t, err)
	assert.Empty(t, mods)
	assert.Empty(t, f.modDirs(t))
}

func TestImportRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	archive := f.zip(t, "quest.zip", map[string]string{"quest.esp": "q"})

	_, err := f.store.Import(ctx, f.game, archive, "Quest Mod")
	require.NoError(t, err)
	_, err = f.store.Import(ctx, f.game, archive, "Quest Mod")
	assert.True(t, errors.Is(err, errs.ErrDuplicateName))
	assert.Len(t, f.modDirs(t), 1)
}

func TestConcurrentImportsOfOneName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	archive := f.zip(t, "quest.zip", map[string]string{"quest.esp": "q"})

	const n = 4
	results := make(chan error, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.store.Import(ctx, f.game, archive, "Quest Mod")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, errs.ErrDuplicateName), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	mods, err := f.records.Mods(ctx, f.game.ID)
	require.NoError(t, err)
	assert.Len(t, mods, 1)
	assert.Equal(t, []string{mods[0].UID}, f.modDirs(t), "losers leave no directory behind")
}

func TestRemoveRejectsReferencedMod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	archive := f.zip(t, "quest.zip", map[string]string{"quest.esp": "q"})
	mod, err := f.store.Import(ctx, f.game, archive, "Quest Mod")
	require.NoError(t, err)

	profile := db.Profile{GameID: f.game.ID, Name: "Main", Slug: "main"}
	require.NoError(t, f.records.CreateProfile(ctx, &profile))
	entry := db.ModEntry{ProfileID: profile.ID, ModID: mod.ID, Enabled: true}
	require.NoError(t, f.records.CreateEntry(ctx, &entry))

	err = f.store.Remove(ctx, f.game, mod)
	assert.True(t, errors.Is(err, errs.ErrModInUse))
	assert.DirExists(t, f.store.ContentDir(f.game, mod))

	require.NoError(t, f.records.DeleteEntry(ctx, entry.ID))
	require.NoError(t, f.store.Remove(ctx, f.game, mod))
	assert.NoDirExists(t, f.store.ContentDir(f.game, mod))

	_, err = f.records.ModByID(ctx, mod.ID)
	assert.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestStem(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/dl/Quest Mod.zip", "Quest Mod"},
		{"/dl/Graphics.Overhaul.tar.gz", "Graphics.Overhaul"},
		{"/dl/patch-1.2.7z", "patch-1.2"},
		{"/dl/loose_folder", "loose_folder"},
		{"/dl/.zip", ".zip"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, Stem(tt.path))
		})
	}
}
