package db

import (
	"strings"

	"gorm.io/gorm"
)

// DeployKind selects the engine-specific deploy strategy of a Game.
type DeployKind string

const (
	DeployOverlay        DeployKind = "overlay"
	DeployGamebryo       DeployKind = "gamebryo"
	DeployCreationEngine DeployKind = "creation_engine"
	DeployOpenMW         DeployKind = "openmw"
	DeployBaldursGate3   DeployKind = "baldurs_gate_3"
)

// DeployKinds lists every known kind in display order.
var DeployKinds = []DeployKind{
	DeployOverlay,
	DeployGamebryo,
	DeployCreationEngine,
	DeployOpenMW,
	DeployBaldursGate3,
}

var deployKindNames = map[DeployKind]string{
	DeployOverlay:        "Overlay",
	DeployGamebryo:       "Gamebryo",
	DeployCreationEngine: "Creation Engine",
	DeployOpenMW:         "OpenMW",
	DeployBaldursGate3:   "Baldur's Gate 3",
}

func (k DeployKind) String() string {
	return string(k)
}

// DisplayName is the human friendly name of the kind.
func (k DeployKind) DisplayName() string {
	if name, ok := deployKindNames[k]; ok {
		return name
	}
	return string(k)
}

// ParseDeployKind accepts the stored value or the display name, case-insensitively.
func ParseDeployKind(s string) (DeployKind, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, k := range DeployKinds {
		if norm == string(k) || norm == strings.ToLower(k.DisplayName()) {
			return k, true
		}
	}
	return "", false
}

// Game is a managed game. Its library directory is derived from Slug.
type Game struct {
	gorm.Model
	Name       string     `gorm:"uniqueIndex"`
	Slug       string     `gorm:"uniqueIndex"`
	DeployKind DeployKind // Engine-specific deploy strategy
	InstallDir string     // The game's own install directory, the lowest overlay layer
	Targets    string     // Extra target paths, newline separated
}

// TargetList splits Targets into paths.
func (g Game) TargetList() []string {
	var out []string
	for _, t := range strings.Split(g.Targets, "\n") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Mod is an imported, immutable payload belonging to one Game.
type Mod struct {
	gorm.Model
	UID    string `gorm:"uniqueIndex"` // Names the content directory
	GameID uint   `gorm:"uniqueIndex:idx_mod_game_name"`
	Name   string `gorm:"uniqueIndex:idx_mod_game_name"` // Display name, unique per game
	Source string // Archive the mod was imported from
}

// Profile is a named load order for a Game.
type Profile struct {
	gorm.Model
	GameID uint   `gorm:"index:idx_profile_game_slug"`
	Name   string
	Slug   string `gorm:"index:idx_profile_game_slug"`
}

// ModEntry places a Mod at Position in a Profile's load order.
// Positions within a profile are always 0..n-1.
type ModEntry struct {
	gorm.Model
	ProfileID uint `gorm:"index"`
	ModID     uint `gorm:"index"`
	Position  int
	Enabled   bool
	Notes     string
}

// Tool is an external program launched from a Game's deploy target.
type Tool struct {
	gorm.Model
	GameID uint `gorm:"index"`
	Name   string
	Path   string // The path to the tool's executable
	Args   string // Additional command-line arguments
}

// Session persists a session's current profile between invocations.
type Session struct {
	ID               uint `gorm:"primaryKey"`
	CurrentProfileID *uint
}

// Deployment journals an active mount so another process can undeploy it.
type Deployment struct {
	gorm.Model
	GameID    uint `gorm:"uniqueIndex"`
	ProfileID uint
	HandleID  string
	Backend   string
	Target    string
	Lower     string // Lower layers, newline separated, ascending precedence
	Upper     string
	Work      string
}
