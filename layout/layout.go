// Package layout maps records to their directories under the library root:
//
//	<root>/games/<game>/
//	<root>/games/<game>/staging/
//	<root>/games/<game>/mods/<mod>/
//	<root>/games/<game>/profiles/<profile>/overlay/{work,upper}/
//	<root>/locks/game-<id>.lock
package layout

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"barnacle/db"
)

type Layout struct {
	Root string
}

func New(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) GamesDir() string {
	return filepath.Join(l.Root, "games")
}

func (l Layout) GameDir(g db.Game) string {
	return filepath.Join(l.GamesDir(), g.Slug)
}

func (l Layout) ModsDir(g db.Game) string {
	return filepath.Join(l.GameDir(g), "mods")
}

// ModDir is the immutable content directory of m.
func (l Layout) ModDir(g db.Game, m db.Mod) string {
	return filepath.Join(l.ModsDir(g), m.UID)
}

func (l Layout) ProfilesDir(g db.Game) string {
	return filepath.Join(l.GameDir(g), "profiles")
}

func (l Layout) ProfileDir(g db.Game, p db.Profile) string {
	return filepath.Join(l.ProfilesDir(g), p.Slug)
}

func (l Layout) OverlayDir(g db.Game, p db.Profile) string {
	return filepath.Join(l.ProfileDir(g, p), "overlay")
}

// UpperDir captures every write made while the profile is mounted.
func (l Layout) UpperDir(g db.Game, p db.Profile) string {
	return filepath.Join(l.OverlayDir(g, p), "upper")
}

func (l Layout) WorkDir(g db.Game, p db.Profile) string {
	return filepath.Join(l.OverlayDir(g, p), "work")
}

// StagingDir is the mount target of staging-style deploy kinds.
func (l Layout) StagingDir(g db.Game) string {
	return filepath.Join(l.GameDir(g), "staging")
}

// DeployLock is the file every process locks before mounting or unmounting
// the game. It is keyed by id so it outlives renames and the game's directory.
func (l Layout) DeployLock(gameID uint) string {
	return filepath.Join(l.Root, "locks", fmt.Sprintf("game-%d.lock", gameID))
}

// Slug turns a display name into a directory name: lower snake case with
// anything outside letters and digits collapsed to a single underscore.
func Slug(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		case r == '\'':
			// "Baldur's" -> "baldurs"
		default:
			pendingSep = true
		}
	}
	return b.String()
}
