// Package modstore imports mod archives into immutable content directories
// and removes them again.
package modstore

import (
	"context"
	"path/filepath"
	"strings"

	"barnacle/db"
	"barnacle/errs"
	"barnacle/extract"
	"barnacle/layout"
	"barnacle/logger"
	"barnacle/perms"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store owns every mod content directory under the library.
type Store struct {
	records   *db.Store
	layout    layout.Layout
	perms     *perms.Manager
	extractor extract.Extractor
}

func New(records *db.Store, l layout.Layout, pm *perms.Manager, ex extract.Extractor) *Store {
	return &Store{records: records, layout: l, perms: pm, extractor: ex}
}

// ContentDir is the read-only payload directory of mod.
func (s *Store) ContentDir(game db.Game, mod db.Mod) string {
	return s.layout.ModDir(game, mod)
}

// Import extracts source into a fresh content directory, locks it read-only
// and only then records the mod. On failure neither the directory nor the
// record is left behind. An empty name defaults to the archive's file stem.
func (s *Store) Import(ctx context.Context, game db.Game, source, name string) (db.Mod, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = Stem(source)
	}
	if name == "" {
		return db.Mod{}, errs.New(errs.CodeInvalidInput, "mod name is required")
	}
	// Fail before extracting when the name is visibly taken; the insert
	// below checks again.
	if err := checkModUnique(ctx, s.records, game, name); err != nil {
		return db.Mod{}, err
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return db.Mod{}, errs.Wrap(err, errs.CodeInvalidInput, "resolving mod source").With("source", source)
	}
	mod := db.Mod{UID: uuid.NewString(), GameID: game.ID, Name: name, Source: abs}
	dir := s.ContentDir(game, mod)
	log := logger.Log.With(zap.String("game", game.Name), zap.String("mod", name))

	cleanup := func(cause error) error {
		if rmErr := s.perms.RemoveTree(dir); rmErr != nil {
			log.Errorw("Failed to remove partial mod directory", zap.String("dir", dir), zap.Error(rmErr))
		}
		return cause
	}

	if err := s.extractor.Extract(ctx, abs, dir); err != nil {
		return db.Mod{}, cleanup(err)
	}
	if err := s.perms.Lock(dir); err != nil {
		return db.Mod{}, cleanup(err)
	}
	err = s.records.Transaction(ctx, func(tx *db.Store) error {
		if err := checkModUnique(ctx, tx, game, name); err != nil {
			return err
		}
		return tx.CreateMod(ctx, &mod)
	})
	if err != nil {
		if e, ok := err.(*errs.Error); ok && e.Code == errs.CodeDuplicateName {
			e.With("game", game.Name).With("mod", name)
		}
		return db.Mod{}, cleanup(err)
	}

	log.Infow("Mod imported", zap.String("uid", mod.UID), zap.String("source", abs))
	return mod, nil
}

func checkModUnique(ctx context.Context, records *db.Store, game db.Game, name string) error {
	_, err := records.ModByName(ctx, game.ID, name)
	if err == nil {
		return errs.New(errs.CodeDuplicateName, "a mod with this name already exists").
			With("game", game.Name).
			With("mod", name)
	}
	if !errs.HasCode(err, errs.CodeNotFound) {
		return err
	}
	return nil
}

// Remove deletes mod's directory and record. A mod still placed in any
// profile's load order is rejected with ErrModInUse until it is detached.
func (s *Store) Remove(ctx context.Context, game db.Game, mod db.Mod) error {
	dir := s.ContentDir(game, mod)
	err := s.records.Transaction(ctx, func(tx *db.Store) error {
		refs, err := tx.EntryCountForMod(ctx, mod.ID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return errs.New(errs.CodeModInUse, "mod is still in a load order").
				With("mod", mod.Name).
				With("entries", refs)
		}
		if err := s.perms.RemoveTree(dir); err != nil {
			return err
		}
		return tx.DeleteMod(ctx, mod.ID)
	})
	if err != nil {
		return err
	}
	logger.Log.Infow("Mod removed", zap.String("game", game.Name), zap.String("mod", mod.Name), zap.String("uid", mod.UID))
	return nil
}

// Stem returns the file name of path without archive extensions, so
// "Quest Mod.tar.gz" becomes "Quest Mod".
func Stem(path string) string {
	base := filepath.Base(filepath.Clean(path))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	for {
		ext := filepath.Ext(base)
		if ext == "" || ext == base || !isArchiveExt(ext) {
			return base
		}
		base = strings.TrimSuffix(base, ext)
	}
}

func isArchiveExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".zip", ".7z", ".rar", ".tar", ".gz", ".tgz", ".xz", ".txz", ".zst", ".bz2", ".lz4", ".br", ".sz":
		return true
	}
	return false
}
