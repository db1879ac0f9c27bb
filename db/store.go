package db

import (
	"context"
	"errors"

	"barnacle/errs"

	"gorm.io/gorm"
)

// Store is the typed, transactional record store. It holds no business
// rules: uniqueness and reference policies are checked by callers.
type Store struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// Transaction runs fn against a Store bound to one database transaction.
// A non-nil error from fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Wrapf(err, errs.CodeNotFound, "%s not found", what)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.Wrapf(err, errs.CodeDuplicateName, "%s already exists", what)
	}
	return errs.Wrapf(err, errs.CodeStore, "%s query failed", what)
}

// Games

func (s *Store) CreateGame(ctx context.Context, g *Game) error {
	return storeErr(s.conn(ctx).Create(g).Error, "game")
}

// UpdateGame writes g's name and deploy kind. Its slug never changes.
func (s *Store) UpdateGame(ctx context.Context, g *Game) error {
	return storeErr(s.conn(ctx).Model(g).Select("Name", "DeployKind").Updates(g).Error, "game")
}

func (s *Store) GameByID(ctx context.Context, id uint) (Game, error) {
	var g Game
	err := s.conn(ctx).First(&g, id).Error
	return g, storeErr(err, "game")
}

func (s *Store) GameByName(ctx context.Context, name string) (Game, error) {
	var g Game
	err := s.conn(ctx).Where("name = ?", name).First(&g).Error
	return g, storeErr(err, "game")
}

func (s *Store) GameBySlug(ctx context.Context, slug string) (Game, error) {
	var g Game
	err := s.conn(ctx).Where("slug = ?", slug).First(&g).Error
	return g, storeErr(err, "game")
}

func (s *Store) Games(ctx context.Context) ([]Game, error) {
	var games []Game
	err := s.conn(ctx).Order("name").Find(&games).Error
	return games, storeErr(err, "games")
}

// DeleteGame removes the game row and every row it owns.
func (s *Store) DeleteGame(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		profiles, err := tx.Profiles(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range profiles {
			if err := tx.DeleteProfile(ctx, p.ID); err != nil {
				return err
			}
		}
		db := tx.conn(ctx).Unscoped()
		if err := db.Where("game_id = ?", id).Delete(&Mod{}).Error; err != nil {
			return storeErr(err, "mods")
		}
		if err := db.Where("game_id = ?", id).Delete(&Tool{}).Error; err != nil {
			return storeErr(err, "tools")
		}
		if err := db.Where("game_id = ?", id).Delete(&Deployment{}).Error; err != nil {
			return storeErr(err, "deployment")
		}
		return storeErr(db.Delete(&Game{}, id).Error, "game")
	})
}

// Mods

func (s *Store) CreateMod(ctx context.Context, m *Mod) error {
	return storeErr(s.conn(ctx).Create(m).Error, "mod")
}

func (s *Store) ModByID(ctx context.Context, id uint) (Mod, error) {
	var m Mod
	err := s.conn(ctx).First(&m, id).Error
	return m, storeErr(err, "mod")
}

func (s *Store) ModByName(ctx context.Context, gameID uint, name string) (Mod, error) {
	var m Mod
	err := s.conn(ctx).Where("game_id = ? AND name = ?", gameID, name).First(&m).Error
	return m, storeErr(err, "mod")
}

func (s *Store) Mods(ctx context.Context, gameID uint) ([]Mod, error) {
	var mods []Mod
	err := s.conn(ctx).Where("game_id = ?", gameID).Order("id").Find(&mods).Error
	return mods, storeErr(err, "mods")
}

func (s *Store) DeleteMod(ctx context.Context, id uint) error {
	return storeErr(s.conn(ctx).Unscoped().Delete(&Mod{}, id).Error, "mod")
}

// Profiles

func (s *Store) CreateProfile(ctx context.Context, p *Profile) error {
	return storeErr(s.conn(ctx).Create(p).Error, "profile")
}

// UpdateProfile writes p's name. Its slug never changes.
func (s *Store) UpdateProfile(ctx context.Context, p *Profile) error {
	return storeErr(s.conn(ctx).Model(p).Select("Name").Updates(p).Error, "profile")
}

func (s *Store) ProfileByID(ctx context.Context, id uint) (Profile, error) {
	var p Profile
	err := s.conn(ctx).First(&p, id).Error
	return p, storeErr(err, "profile")
}

func (s *Store) ProfileByName(ctx context.Context, gameID uint, name string) (Profile, error) {
	var p Profile
	err := s.conn(ctx).Where("game_id = ? AND name = ?", gameID, name).First(&p).Error
	return p, storeErr(err, "profile")
}

func (s *Store) ProfileBySlug(ctx context.Context, gameID uint, slug string) (Profile, error) {
	var p Profile
	err := s.conn(ctx).Where("game_id = ? AND slug = ?", gameID, slug).First(&p).Error
	return p, storeErr(err, "profile")
}

func (s *Store) Profiles(ctx context.Context, gameID uint) ([]Profile, error) {
	var profiles []Profile
	err := s.conn(ctx).Where("game_id = ?", gameID).Order("name").Find(&profiles).Error
	return profiles, storeErr(err, "profiles")
}

// DeleteProfile removes the profile, its entries and any session pointing at it.
func (s *Store) DeleteProfile(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		db := tx.conn(ctx).Unscoped()
		if err := db.Where("profile_id = ?", id).Delete(&ModEntry{}).Error; err != nil {
			return storeErr(err, "mod entries")
		}
		if err := db.Model(&Session{}).Where("current_profile_id = ?", id).
			Update("current_profile_id", nil).Error; err != nil {
			return storeErr(err, "session")
		}
		return storeErr(db.Delete(&Profile{}, id).Error, "profile")
	})
}

// Mod entries

// Entries returns a profile's entries in load order.
func (s *Store) Entries(ctx context.Context, profileID uint) ([]ModEntry, error) {
	var entries []ModEntry
	err := s.conn(ctx).Where("profile_id = ?", profileID).Order("position, id").Find(&entries).Error
	return entries, storeErr(err, "mod entries")
}

func (s *Store) EntryByID(ctx context.Context, id uint) (ModEntry, error) {
	var e ModEntry
	err := s.conn(ctx).First(&e, id).Error
	return e, storeErr(err, "mod entry")
}

func (s *Store) CreateEntry(ctx context.Context, e *ModEntry) error {
	return storeErr(s.conn(ctx).Create(e).Error, "mod entry")
}

func (s *Store) SaveEntry(ctx context.Context, e *ModEntry) error {
	return storeErr(s.conn(ctx).Save(e).Error, "mod entry")
}

func (s *Store) DeleteEntry(ctx context.Context, id uint) error {
	return storeErr(s.conn(ctx).Unscoped().Delete(&ModEntry{}, id).Error, "mod entry")
}

// EntryCountForMod counts entries, across all profiles, that reference modID.
func (s *Store) EntryCountForMod(ctx context.Context, modID uint) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&ModEntry{}).Where("mod_id = ?", modID).Count(&count).Error
	return count, storeErr(err, "mod entries")
}

// Tools

func (s *Store) CreateTool(ctx context.Context, t *Tool) error {
	return storeErr(s.conn(ctx).Create(t).Error, "tool")
}

func (s *Store) ToolByName(ctx context.Context, gameID uint, name string) (Tool, error) {
	var t Tool
	err := s.conn(ctx).Where("game_id = ? AND name = ?", gameID, name).First(&t).Error
	return t, storeErr(err, "tool")
}

func (s *Store) Tools(ctx context.Context, gameID uint) ([]Tool, error) {
	var tools []Tool
	err := s.conn(ctx).Where("game_id = ?", gameID).Order("name").Find(&tools).Error
	return tools, storeErr(err, "tools")
}

func (s *Store) DeleteTool(ctx context.Context, id uint) error {
	return storeErr(s.conn(ctx).Unscoped().Delete(&Tool{}, id).Error, "tool")
}

// Sessions

// CurrentProfileID returns the current profile recorded for sessionID, or nil.
func (s *Store) CurrentProfileID(ctx context.Context, sessionID uint) (*uint, error) {
	var sess Session
	err := s.conn(ctx).Where("id = ?", sessionID).Limit(1).Find(&sess).Error
	if err != nil {
		return nil, storeErr(err, "session")
	}
	return sess.CurrentProfileID, nil
}

func (s *Store) SetCurrentProfileID(ctx context.Context, sessionID uint, profileID *uint) error {
	sess := Session{ID: sessionID, CurrentProfileID: profileID}
	return storeErr(s.conn(ctx).Save(&sess).Error, "session")
}

// Deployments

// SaveDeployment records d as the active deployment of its game. It fails
// with ErrAlreadyDeployed when the game already has one.
func (s *Store) SaveDeployment(ctx context.Context, d *Deployment) error {
	return s.Transaction(ctx, func(tx *Store) error {
		existing, ok, err := tx.Deployment(ctx, d.GameID)
		if err != nil {
			return err
		}
		if ok {
			return errs.New(errs.CodeAlreadyDeployed, "game already has a journaled deployment").
				With("game", d.GameID).
				With("deployed_profile", existing.ProfileID)
		}
		d.ID = 0
		return storeErr(tx.conn(ctx).Create(d).Error, "deployment")
	})
}

// Deployment returns the journaled deployment of gameID, if there is one.
func (s *Store) Deployment(ctx context.Context, gameID uint) (Deployment, bool, error) {
	var out []Deployment
	err := s.conn(ctx).Where("game_id = ?", gameID).Limit(1).Find(&out).Error
	if err != nil {
		return Deployment{}, false, storeErr(err, "deployment")
	}
	if len(out) == 0 {
		return Deployment{}, false, nil
	}
	return out[0], true, nil
}

// DeleteDeployment removes the journal row of the mount identified by
// handleID. Rows of other mounts of the game are left alone.
func (s *Store) DeleteDeployment(ctx context.Context, gameID uint, handleID string) error {
	err := s.conn(ctx).Unscoped().
		Where("game_id = ? AND handle_id = ?", gameID, handleID).
		Delete(&Deployment{}).Error
	return storeErr(err, "deployment")
}

func (s *Store) Deployments(ctx context.Context) ([]Deployment, error) {
	var out []Deployment
	err := s.conn(ctx).Order("game_id").Find(&out).Error
	return out, storeErr(err, "deployments")
}
