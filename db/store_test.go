package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"barnacle/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewStore(gdb)
}

func TestParseDeployKind(t *testing.T) {
	tests := []struct {
		in   string
		want DeployKind
		ok   bool
	}{
		{"overlay", DeployOverlay, true},
		{"OpenMW", DeployOpenMW, true},
		{"openmw", DeployOpenMW, true},
		{"Creation Engine", DeployCreationEngine, true},
		{"baldurs_gate_3", DeployBaldursGate3, true},
		{"Baldur's Gate 3", DeployBaldursGate3, true},
		{"unreal", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDeployKind(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGameTargetList(t *testing.T) {
	g := Game{Targets: "Data Files\n\n  bin  \n"}
	assert.Equal(t, []string{"Data Files", "bin"}, g.TargetList())
}

func TestStoreGameNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GameByName(context.Background(), "Morrowind")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStoreModNamesAreUniquePerGame(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateMod(ctx, &Mod{UID: "a", GameID: 1, Name: "Quest Mod"}))
	err := s.CreateMod(ctx, &Mod{UID: "b", GameID: 1, Name: "Quest Mod"})
	assert.True(t, errs.HasCode(err, errs.CodeDuplicateName), "got %v", err)
	require.NoError(t, s.CreateMod(ctx, &Mod{UID: "c", GameID: 2, Name: "Quest Mod"}), "other games may reuse the name")
}

func TestStoreEntriesAreOrderedByPosition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	game := Game{Name: "Morrowind", Slug: "morrowind", DeployKind: DeployOpenMW}
	require.NoError(t, s.CreateGame(ctx, &game))
	profile := Profile{GameID: game.ID, Name: "Main", Slug: "main"}
	require.NoError(t, s.CreateProfile(ctx, &profile))

	for i, pos := range []int{2, 0, 1} {
		m := Mod{UID: string(rune('a' + i)), GameID: game.ID, Name: "mod"}
		require.NoError(t, s.CreateMod(ctx, &m))
		require.NoError(t, s.CreateEntry(ctx, &ModEntry{ProfileID: profile.ID, ModID: m.ID, Position: pos, Enabled: true}))
	}

	entries, err := s.Entries(ctx, profile.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i, e.Position)
	}
}

func TestStoreDeleteGameCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	game := Game{Name: "Skyrim", Slug: "skyrim", DeployKind: DeployCreationEngine}
	require.NoError(t, s.CreateGame(ctx, &game))
	profile := Profile{GameID: game.ID, Name: "Main", Slug: "main"}
	require.NoError(t, s.CreateProfile(ctx, &profile))
	m := Mod{UID: "uid-1", GameID: game.ID, Name: "SkyUI"}
	require.NoError(t, s.CreateMod(ctx, &m))
	require.NoError(t, s.CreateEntry(ctx, &ModEntry{ProfileID: profile.ID, ModID: m.ID, Enabled: true}))
	require.NoError(t, s.CreateTool(ctx, &Tool{GameID: game.ID, Name: "xEdit", Path: "/bin/true"}))
	require.NoError(t, s.SetCurrentProfileID(ctx, 1, &profile.ID))

	require.NoError(t, s.DeleteGame(ctx, game.ID))

	_, err := s.GameByID(ctx, game.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = s.ProfileByID(ctx, profile.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = s.ModByID(ctx, m.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	count, err := s.EntryCountForMod(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	tools, err := s.Tools(ctx, game.ID)
	require.NoError(t, err)
	assert.Empty(t, tools)

	current, err := s.CurrentProfileID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, current)

	// The unique name is free again after a hard delete.
	again := Game{Name: "Skyrim", Slug: "skyrim"}
	assert.NoError(t, s.CreateGame(ctx, &again))
}

func TestStoreTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("directory creation failed")
	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.CreateGame(ctx, &Game{Name: "Oblivion", Slug: "oblivion"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GameByName(ctx, "Oblivion")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStoreSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	current, err := s.CurrentProfileID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, current)

	id := uint(7)
	require.NoError(t, s.SetCurrentProfileID(ctx, 1, &id))
	current, err = s.CurrentProfileID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, uint(7), *current)

	other, err := s.CurrentProfileID(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, other, "sessions do not share the current profile")
}

func TestStoreDeploymentJournal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveDeployment(ctx, &Deployment{GameID: 1, ProfileID: 1, HandleID: "a"}))
	err := s.SaveDeployment(ctx, &Deployment{GameID: 1, ProfileID: 2, HandleID: "b"})
	assert.True(t, errs.HasCode(err, errs.CodeAlreadyDeployed), "a second mount never replaces the first")
	require.NoError(t, s.SaveDeployment(ctx, &Deployment{GameID: 2, ProfileID: 3, HandleID: "c"}))

	deps, err := s.Deployments(ctx)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "a", deps[0].HandleID)

	row, ok, err := s.Deployment(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint(1), row.ProfileID)

	require.NoError(t, s.DeleteDeployment(ctx, 1, "b"))
	_, ok, err = s.Deployment(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "another mount's handle leaves the row alone")

	require.NoError(t, s.DeleteDeployment(ctx, 1, "a"))
	deps, err = s.Deployments(ctx)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, uint(2), deps[0].GameID)

	_, ok, err = s.Deployment(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
