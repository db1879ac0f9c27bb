// Package library ties the record store, mod store, load-order resolver and
// deployer together behind the operations the CLI and GUI use.
package library

import (
	"context"
	"io"

	"barnacle/config"
	"barnacle/db"
	"barnacle/deploy"
	"barnacle/errs"
	"barnacle/extract"
	"barnacle/layout"
	"barnacle/loadorder"
	"barnacle/logger"
	"barnacle/modstore"
	"barnacle/overlay"
	"barnacle/perms"

	"go.uber.org/zap"
)

// DefaultSession is the session the command line works in.
const DefaultSession uint = 1

// Session identifies whose current profile is read and written. Separate
// sessions never see each other's current profile.
type Session struct {
	ID uint
}

func NewSession(id uint) *Session {
	return &Session{ID: id}
}

type Options struct {
	Root      string
	Mounter   overlay.Mounter
	Extractor extract.Extractor
	Hook      deploy.Hook
	Session   *Session
}

// Library is one library root and the session working in it.
type Library struct {
	Session *Session

	store    *db.Store
	layout   layout.Layout
	perms    *perms.Manager
	mods     *modstore.Store
	order    *loadorder.Resolver
	deployer *deploy.Deployer
	closer   io.Closer
}

// New wires a Library over store and adopts mounts journaled by earlier
// processes.
func New(ctx context.Context, store *db.Store, opts Options) (*Library, error) {
	if opts.Root == "" {
		return nil, errs.New(errs.CodeInvalidInput, "library root is required")
	}
	if opts.Mounter == nil {
		return nil, errs.New(errs.CodeInvalidInput, "a mounter is required")
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.New()
	}
	if opts.Session == nil {
		opts.Session = NewSession(DefaultSession)
	}

	l := layout.New(opts.Root)
	pm := perms.NewOS()
	order := loadorder.New(store)
	lib := &Library{
		Session:  opts.Session,
		store:    store,
		layout:   l,
		perms:    pm,
		mods:     modstore.New(store, l, pm, opts.Extractor),
		order:    order,
		deployer: deploy.New(order, l, opts.Mounter, store, opts.Hook),
	}
	if err := lib.deployer.Restore(ctx); err != nil {
		return nil, err
	}
	return lib, nil
}

// Open builds a Library from configuration: the sqlite database under the
// library root and the configured mount backend.
func Open(ctx context.Context, cfg config.Config) (*Library, error) {
	gdb, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeStore, "opening library database").With("path", cfg.DatabasePath)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeStore, "opening library database")
	}
	mounter, err := overlay.New(cfg)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	lib, err := New(ctx, db.NewStore(gdb), Options{
		Root:    cfg.LibraryDir,
		Mounter: mounter,
		Hook:    deploy.CommandHook(cfg.PostMountHook),
	})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	lib.closer = sqlDB
	logger.Log.Debugw("Library opened", zap.String("root", cfg.LibraryDir), zap.String("backend", cfg.MountBackend))
	return lib, nil
}

func (l *Library) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Library) Layout() layout.Layout {
	return l.layout
}

// Order gives direct access to load-order editing.
func (l *Library) Order() *loadorder.Resolver {
	return l.order
}

func (l *Library) Deployer() *deploy.Deployer {
	return l.deployer
}

// SetCurrentProfile records profile as the session's current profile; nil
// clears it.
func (l *Library) SetCurrentProfile(ctx context.Context, profile *db.Profile) error {
	var id *uint
	if profile != nil {
		pid := profile.ID
		id = &pid
	}
	return l.store.SetCurrentProfileID(ctx, l.Session.ID, id)
}

// CurrentProfile returns the session's current profile, if one is set and
// still exists.
func (l *Library) CurrentProfile(ctx context.Context) (db.Profile, bool, error) {
	id, err := l.store.CurrentProfileID(ctx, l.Session.ID)
	if err != nil {
		return db.Profile{}, false, err
	}
	if id == nil {
		return db.Profile{}, false, nil
	}
	p, err := l.store.ProfileByID(ctx, *id)
	if errs.HasCode(err, errs.CodeNotFound) {
		return db.Profile{}, false, nil
	}
	if err != nil {
		return db.Profile{}, false, err
	}
	return p, true, nil
}
