// Package deploy attaches a profile's resolved load order as an overlay over
// its game and detaches it again.
//
// Each game moves through Unmounted -> Mounting -> Mounted -> Unmounting ->
// Unmounted. Mount and unmount calls for one game are serialized across
// processes by a lock file per game, and the deployment journal is the record
// of what is mounted: at most one profile per game is mounted at a time.
package deploy

import (
	"context"
	"strings"
	"sync"

	"barnacle/db"
	"barnacle/errs"
	"barnacle/layout"
	"barnacle/loadorder"
	"barnacle/logger"
	"barnacle/overlay"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type State int

const (
	Unmounted State = iota
	Mounting
	Mounted
	Unmounting
)

func (s State) String() string {
	switch s {
	case Mounting:
		return "mounting"
	case Mounted:
		return "mounted"
	case Unmounting:
		return "unmounting"
	default:
		return "unmounted"
	}
}

// Resolver yields a profile's deployable layers, lowest precedence first.
type Resolver interface {
	Resolve(ctx context.Context, profileID uint) ([]loadorder.Layer, error)
}

// Journal persists active mounts across processes. SaveDeployment must fail
// with ErrAlreadyDeployed when the game already has a row.
type Journal interface {
	SaveDeployment(ctx context.Context, d *db.Deployment) error
	DeleteDeployment(ctx context.Context, gameID uint, handleID string) error
	Deployment(ctx context.Context, gameID uint) (db.Deployment, bool, error)
	Deployments(ctx context.Context) ([]db.Deployment, error)
}

// Active is the mount currently held for a game.
type Active struct {
	ProfileID uint
	Handle    overlay.Handle
	Request   overlay.Request
}

func activeFrom(row db.Deployment) *Active {
	return &Active{
		ProfileID: row.ProfileID,
		Handle:    overlay.Handle{ID: row.HandleID, Backend: row.Backend, Target: row.Target},
		Request: overlay.Request{
			Lower:  splitLines(row.Lower),
			Upper:  row.Upper,
			Work:   row.Work,
			Target: row.Target,
		},
	}
}

type slot struct {
	op sync.Mutex // held for a whole mount or unmount

	mu     sync.Mutex
	state  State
	active *Active
}

func (s *slot) set(state State, active *Active) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.active = active
}

func (s *slot) get() (State, *Active) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.active
}

// Deployer owns the mount handle of every game.
type Deployer struct {
	resolver Resolver
	layout   layout.Layout
	mounter  overlay.Mounter
	journal  Journal
	hook     Hook
	fs       afero.Fs

	mu    sync.Mutex
	slots map[uint]*slot
}

func New(resolver Resolver, l layout.Layout, mounter overlay.Mounter, journal Journal, hook Hook) *Deployer {
	return &Deployer{
		resolver: resolver,
		layout:   l,
		mounter:  mounter,
		journal:  journal,
		hook:     hook,
		fs:       afero.NewOsFs(),
		slots:    make(map[uint]*slot),
	}
}

func (d *Deployer) slotFor(gameID uint) *slot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[gameID]
	if !ok {
		s = &slot{}
		d.slots[gameID] = s
	}
	return s
}

// State reports the game's current lifecycle state without waiting for an
// in-flight mount or unmount.
func (d *Deployer) State(gameID uint) State {
	state, _ := d.slotFor(gameID).get()
	return state
}

// Active returns the game's mount, if any.
func (d *Deployer) Active(gameID uint) (Active, bool) {
	state, active := d.slotFor(gameID).get()
	if state != Mounted || active == nil {
		return Active{}, false
	}
	return *active, true
}

// lock takes game's slot and its lock file, then adopts whatever the journal
// says is mounted, so a mount or unmount made by another process is seen.
// The returned func releases both.
func (d *Deployer) lock(ctx context.Context, gameID uint) (*slot, func(), error) {
	s := d.slotFor(gameID)
	s.op.Lock()
	path := d.layout.DeployLock(gameID)
	fl, err := acquireGameLock(ctx, path)
	if err != nil {
		s.op.Unlock()
		return nil, nil, errs.Wrap(err, errs.CodeFilesystem, "locking game for deploy").
			With("game", gameID).
			With("lock", path)
	}
	release := func() {
		fl.Release()
		s.op.Unlock()
	}
	if err := d.sync(ctx, gameID, s); err != nil {
		release()
		return nil, nil, err
	}
	return s, release, nil
}

func (d *Deployer) sync(ctx context.Context, gameID uint, s *slot) error {
	row, ok, err := d.journal.Deployment(ctx, gameID)
	if err != nil {
		return err
	}
	if !ok {
		s.set(Unmounted, nil)
		return nil
	}
	s.set(Mounted, activeFrom(row))
	return nil
}

// Refresh re-reads game's journaled mount. It returns at once, leaving the
// state alone, while a mount or unmount of game is in flight here.
func (d *Deployer) Refresh(ctx context.Context, gameID uint) error {
	s := d.slotFor(gameID)
	if !s.op.TryLock() {
		return nil
	}
	defer s.op.Unlock()
	return d.sync(ctx, gameID, s)
}

// Guard runs fn while holding game's mount slot and lock file, so no deploy
// or undeploy can start meanwhile in any process. It fails with
// ErrGameDeployed when busy(active) reports the current mount as blocking.
func (d *Deployer) Guard(ctx context.Context, gameID uint, busy func(Active) bool, fn func() error) error {
	s, release, err := d.lock(ctx, gameID)
	if err != nil {
		return err
	}
	defer release()
	if state, active := s.get(); state == Mounted && active != nil && busy(*active) {
		return errs.New(errs.CodeGameDeployed, "undeploy first").
			With("game", gameID).
			With("deployed_profile", active.ProfileID)
	}
	return fn()
}

// Restore loads journaled mounts left by earlier processes.
func (d *Deployer) Restore(ctx context.Context) error {
	rows, err := d.journal.Deployments(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		d.slotFor(row.GameID).set(Mounted, activeFrom(row))
		logger.Log.Debugw("Restored deployment", zap.Uint("game", row.GameID), zap.Uint("profile", row.ProfileID))
	}
	return nil
}

// Request builds the overlay request for profile without mounting it.
func (d *Deployer) Request(ctx context.Context, game db.Game, profile db.Profile) (overlay.Request, []loadorder.Layer, error) {
	strategy, err := StrategyFor(game.DeployKind, d.layout, d.hook)
	if err != nil {
		return overlay.Request{}, nil, err
	}
	layers, err := d.resolver.Resolve(ctx, profile.ID)
	if err != nil {
		return overlay.Request{}, nil, err
	}
	lower := make([]string, 0, len(layers)+1)
	lower = append(lower, game.InstallDir)
	for _, l := range layers {
		lower = append(lower, d.layout.ModDir(game, l.Mod))
	}
	req := overlay.Request{
		Lower:  lower,
		Upper:  d.layout.UpperDir(game, profile),
		Work:   d.layout.WorkDir(game, profile),
		Target: strategy.Target(game),
	}
	return req, layers, nil
}

// Deploy mounts profile's resolved load order for game. It fails with
// ErrAlreadyDeployed while any profile of game is mounted by any process,
// and leaves nothing attached when it fails.
func (d *Deployer) Deploy(ctx context.Context, game db.Game, profile db.Profile) (Mount, error) {
	s, release, err := d.lock(ctx, game.ID)
	if err != nil {
		return Mount{}, err
	}
	defer release()

	log := logger.Log.With(zap.String("game", game.Name), zap.String("profile", profile.Name))

	if state, active := s.get(); state == Mounted {
		return Mount{}, errs.New(errs.CodeAlreadyDeployed, "a profile is already deployed for this game").
			With("game", game.Name).
			With("deployed_profile", active.ProfileID)
	}
	s.set(Mounting, nil)

	m, err := d.mount(ctx, game, profile)
	if err != nil {
		s.set(Unmounted, nil)
		log.Errorw("Deploy failed", zap.Error(err))
		return Mount{}, errs.Wrap(err, errs.CodeDeployFailed, "deploy failed").
			With("game", game.Name).
			With("profile", profile.Name)
	}

	s.set(Mounted, &Active{ProfileID: profile.ID, Handle: *m.Handle, Request: m.Request})
	log.Infow("Profile deployed", zap.String("target", m.Request.Target), zap.Int("layers", len(m.Layers)))
	return m, nil
}

func (d *Deployer) mount(ctx context.Context, game db.Game, profile db.Profile) (Mount, error) {
	strategy, err := StrategyFor(game.DeployKind, d.layout, d.hook)
	if err != nil {
		return Mount{}, err
	}
	req, layers, err := d.Request(ctx, game, profile)
	if err != nil {
		return Mount{}, err
	}
	if err := d.checkLayers(ctx, req.Lower); err != nil {
		return Mount{}, err
	}
	if err := strategy.Prepare(game); err != nil {
		return Mount{}, err
	}
	for _, dir := range []string{req.Upper, req.Work} {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return Mount{}, errs.Wrap(err, errs.CodeFilesystem, "creating overlay scratch directory").With("dir", dir)
		}
	}

	handle, err := d.mounter.Mount(ctx, req)
	if err != nil {
		return Mount{}, err
	}
	m := Mount{Game: game, Profile: profile, Layers: layers, Request: req, Handle: handle}

	if err := strategy.AfterMount(ctx, m); err != nil {
		return Mount{}, d.detach(ctx, handle, err)
	}

	row := &db.Deployment{
		GameID:    game.ID,
		ProfileID: profile.ID,
		HandleID:  handle.ID,
		Backend:   handle.Backend,
		Target:    handle.Target,
		Lower:     strings.Join(req.Lower, "\n"),
		Upper:     req.Upper,
		Work:      req.Work,
	}
	if err := d.journal.SaveDeployment(ctx, row); err != nil {
		return Mount{}, d.detach(ctx, handle, err)
	}
	return m, nil
}

// detach unmounts after a failure past the mount call and returns cause.
func (d *Deployer) detach(ctx context.Context, h *overlay.Handle, cause error) error {
	if err := d.mounter.Unmount(ctx, h); err != nil {
		logger.Log.Errorw("Failed to detach overlay after deploy failure",
			zap.String("target", h.Target), zap.Error(err))
		return errs.Wrap(cause, errs.CodeDeployFailed, "overlay could not be detached").
			With("target", h.Target).
			With("unmount_error", err.Error())
	}
	return cause
}

// checkLayers stats every lower directory concurrently.
func (d *Deployer) checkLayers(ctx context.Context, dirs []string) error {
	g, _ := errgroup.WithContext(ctx)
	for _, dir := range dirs {
		g.Go(func() error {
			info, err := d.fs.Stat(dir)
			if err != nil {
				return errs.Wrap(err, errs.CodeFilesystem, "overlay layer is missing").With("dir", dir)
			}
			if !info.IsDir() {
				return errs.New(errs.CodeFilesystem, "overlay layer is not a directory").With("dir", dir)
			}
			return nil
		})
	}
	return g.Wait()
}

// Undeploy detaches profile's overlay from game. With nothing mounted, or
// another profile mounted, it does nothing. The handle is dropped even when
// the unmount fails; the failure is still returned.
func (d *Deployer) Undeploy(ctx context.Context, game db.Game, profile db.Profile) error {
	s, release, err := d.lock(ctx, game.ID)
	if err != nil {
		return err
	}
	defer release()

	log := logger.Log.With(zap.String("game", game.Name), zap.String("profile", profile.Name))

	state, active := s.get()
	if state != Mounted || active == nil || active.ProfileID != profile.ID {
		log.Debugw("Nothing to undeploy", zap.Stringer("state", state))
		return nil
	}
	s.set(Unmounting, active)

	handle := active.Handle
	unmountErr := d.mounter.Unmount(ctx, &handle)
	journalErr := d.journal.DeleteDeployment(ctx, game.ID, handle.ID)
	s.set(Unmounted, nil)

	if unmountErr != nil {
		log.Errorw("Undeploy failed", zap.Error(unmountErr))
		return errs.Wrap(unmountErr, errs.CodeUndeployFailed, "undeploy failed").
			With("game", game.Name).
			With("profile", profile.Name).
			With("target", handle.Target)
	}
	if journalErr != nil {
		return journalErr
	}
	log.Infow("Profile undeployed", zap.String("target", handle.Target))
	return nil
}

// Preview lists every file the merged view of profile would show, with the
// layer that provides it. Nothing is mounted.
func (d *Deployer) Preview(ctx context.Context, game db.Game, profile db.Profile) ([]overlay.Source, error) {
	req, _, err := d.Request(ctx, game, profile)
	if err != nil {
		return nil, err
	}
	sources, err := overlay.Sources(d.fs, req)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeFilesystem, "reading overlay layers")
	}
	return sources, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

var _ Journal = (*db.Store)(nil)
