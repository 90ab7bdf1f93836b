package playersdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/calvinalkan/playersdb/internal/fs"
)

// ErrDuplicateActionID is returned by [Store.AddAction] for an ID already in use.
var ErrDuplicateActionID = errors.New("action id already exists")

// Phase is a step of the startup state machine, or the runtime state.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseRecovering
	PhaseRecovered
	PhaseCreated
	PhaseMigrating
	PhaseReady
	PhaseFatalLoad
	PhaseFatalMigration
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseRecovering:
		return "recovering"
	case PhaseRecovered:
		return "recovered"
	case PhaseCreated:
		return "created"
	case PhaseMigrating:
		return "migrating"
	case PhaseReady:
		return "ready"
	case PhaseFatalLoad:
		return "fatal-load-failure"
	case PhaseFatalMigration:
		return "fatal-migration-failure"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StartupReport describes how [Open] reached the ready state.
type StartupReport struct {
	// Source is PhaseLoaded, PhaseRecovered or PhaseCreated.
	Source Phase

	// FromVersion is the on-disk version before migration.
	FromVersion int

	Migrated bool

	// WipedPendingWL is the number of pending whitelist entries cleared by
	// [Options.WipePendingWLOnStart].
	WipedPendingWL int
}

// Store owns the in-memory document and its write state for the process
// lifetime. Create one with [Open] and pass it to collaborators explicitly.
//
// All methods are safe for concurrent use. The document is guarded by a
// single RWMutex; file I/O never runs while it is held, and flushes are
// serialized so only one writer touches the file at a time.
type Store struct {
	opts  Options
	files *FileStore
	log   *slog.Logger
	sched *Scheduler
	lock  fs.Locker

	mu     sync.RWMutex
	doc    *Document
	phase  Phase
	closed bool

	flushMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error

	startup StartupReport
}

// Open loads the document, restoring it from the backup if the primary file
// cannot be loaded, migrates it to [CurrentVersion] and returns a ready store.
//
// If neither the primary nor the backup file exists a fresh document is
// created and written. Startup failures that leave no consistent document are
// returned as [*FatalError]; the caller should stop. Open also takes an
// exclusive process lock next to the primary file and fails with [ErrLocked]
// if another process holds it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock, err := opts.FS.Lock(LockPath(opts.DBPath))
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, opts.DBPath)
		}

		return nil, fmt.Errorf("lock %s: %w", opts.DBPath, err)
	}

	s := &Store{
		opts:  opts,
		files: NewFileStore(opts.FS, opts.Pretty),
		log:   opts.Logger,
		lock:  lock,
		phase: PhaseUninitialized,
	}

	err = s.setup()
	if err != nil {
		_ = lock.Close()

		return nil, err
	}

	return s, nil
}

func (s *Store) setup() error {
	doc, err := s.load()
	if err != nil {
		s.phase = PhaseFatalLoad

		return err
	}

	s.startup.FromVersion = doc.Version
	s.sched = NewScheduler(s.opts.Thresholds, s.opts.Now())

	if doc.Version != CurrentVersion {
		s.phase = PhaseMigrating

		err := Migrate(doc, doc.Version, s.log)
		if err != nil {
			s.phase = PhaseFatalMigration

			return &FatalError{
				Stage:      StageMigrate,
				DBPath:     s.opts.DBPath,
				BackupPath: s.opts.BackupPath,
				Err:        err,
			}
		}

		s.startup.Migrated = true

		saveErr := s.files.Save(s.opts.DBPath, doc)
		if saveErr != nil {
			s.log.Error("failed to save migrated players database; will retry", "error", saveErr)
			_, _ = s.sched.Raise(PriorityHigh)
		}
	}

	if s.opts.WipePendingWLOnStart && len(doc.PendingWL) > 0 {
		s.startup.WipedPendingWL = len(doc.PendingWL)
		doc.PendingWL = []PendingWL{}
		_, _ = s.sched.Raise(PriorityHigh)
	}

	s.doc = doc
	s.phase = PhaseReady

	return nil
}

// load runs Loading → Loaded | Recovering → Recovered | Created.
func (s *Store) load() (*Document, error) {
	dbPath, backupPath := s.opts.DBPath, s.opts.BackupPath

	s.phase = PhaseLoading

	doc, mainErr := s.files.Load(dbPath)
	if mainErr == nil {
		s.phase = PhaseLoaded
		s.startup.Source = PhaseLoaded

		return doc, nil
	}

	if errors.Is(mainErr, os.ErrNotExist) && !s.files.exists(backupPath) {
		s.log.Info("creating players database", "path", dbPath)

		doc = NewDocument()

		err := s.files.Save(dbPath, doc)
		if err != nil {
			return nil, &FatalError{Stage: StageLoad, DBPath: dbPath, BackupPath: backupPath, Err: err}
		}

		s.phase = PhaseCreated
		s.startup.Source = PhaseCreated

		return doc, nil
	}

	s.log.Error("players database could not be loaded", "path", dbPath, "error", mainErr)
	s.phase = PhaseRecovering

	recoverErr := s.files.Copy(backupPath, dbPath)
	if recoverErr == nil {
		doc, recoverErr = s.files.Load(dbPath)
	}

	if recoverErr != nil {
		s.log.Error("automatic backup could not be loaded either",
			"db_path", dbPath, "backup_path", backupPath,
			"main_error", mainErr, "backup_error", recoverErr)

		return nil, &FatalError{
			Stage:       StageLoad,
			DBPath:      dbPath,
			BackupPath:  backupPath,
			Err:         mainErr,
			RecoveryErr: recoverErr,
		}
	}

	s.log.Warn("players database restored from automatic backup; recent changes may be rolled back",
		"path", dbPath, "max_rollback", s.opts.BackupInterval)

	s.phase = PhaseRecovered
	s.startup.Source = PhaseRecovered

	return doc, nil
}

// Phase returns the current phase. A store returned by [Open] is
// [PhaseReady] until closed.
func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.phase
}

// Startup returns how the store reached the ready state.
func (s *Store) Startup() StartupReport {
	return s.startup
}

// DBPath returns the primary file path.
func (s *Store) DBPath() string {
	return s.opts.DBPath
}

// BackupPath returns the backup file path.
func (s *Store) BackupPath() string {
	return s.opts.BackupPath
}

// Pending returns the pending write priority.
func (s *Store) Pending() Priority {
	return s.sched.Pending()
}

// Snapshot returns a deep copy of the document.
func (s *Store) Snapshot() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.doc.Clone()
}

// View calls fn with read access to the live document. fn must not modify
// the document or keep references to it after returning.
func (s *Store) View(fn func(doc *Document)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fn(s.doc)
}

// Mutate calls fn with write access to the document. It does not flag a
// write; call [Store.FlagDirty] or use [Store.Update]. fn must not keep
// references to the document after returning.
func (s *Store) Mutate(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	return fn(s.doc)
}

// FlagDirty raises the pending write priority to at least p.
func (s *Store) FlagDirty(p Priority) error {
	raised, err := s.sched.Raise(p)
	if err != nil {
		return err
	}

	if raised {
		s.log.Debug("write flag raised", "priority", p)
	}

	return nil
}

// Update mutates the document with fn and flags a write with priority p if
// fn succeeds. An invalid p is rejected before fn runs.
func (s *Store) Update(p Priority, fn func(doc *Document) error) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, int(p))
	}

	if err := s.Mutate(fn); err != nil {
		return err
	}

	return s.FlagDirty(p)
}

// GenerateActionID returns an unused action ID for actionType.
func (s *Store) GenerateActionID(actionType string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return GenerateActionID(s.doc.ActionIDs(), actionType)
}

// AddAction appends action and flags a write with priority p. An empty ID is
// generated; a given ID must be unused. Returns the stored action.
func (s *Store) AddAction(p Priority, action Action) (Action, error) {
	if !p.Valid() {
		return Action{}, fmt.Errorf("%w: %d", ErrInvalidPriority, int(p))
	}

	err := s.Mutate(func(doc *Document) error {
		ids := doc.ActionIDs()

		if action.ID == "" {
			id, err := GenerateActionID(ids, action.Type)
			if err != nil {
				return err
			}

			action.ID = id
		} else if _, taken := ids[action.ID]; taken {
			return fmt.Errorf("%w: %s", ErrDuplicateActionID, action.ID)
		}

		doc.Actions = append(doc.Actions, action)

		return nil
	})
	if err != nil {
		return Action{}, err
	}

	return action, s.FlagDirty(p)
}

// FlushTick asks the scheduler whether to flush now and flushes if so.
// Reports whether a flush happened. A failed save is logged, leaves the
// pending priority in place for the next tick, and is returned.
func (s *Store) FlushTick(ctx context.Context) (bool, error) {
	if s.isClosed() {
		return false, ErrClosed
	}

	if s.sched.Decide(s.opts.Now()) == Skip {
		s.log.Debug("skipping players database save", "pending", s.sched.Pending())

		return false, nil
	}

	err := s.flush(ctx)
	if err != nil {
		return false, err
	}

	return true, nil
}

// Flush writes the document now regardless of the pending priority.
func (s *Store) Flush(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}

	return s.flush(ctx)
}

func (s *Store) flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	began := time.Now()
	ticket := s.sched.Begin(s.opts.Now())

	s.mu.RLock()
	data, err := Encode(s.doc, s.opts.Pretty)
	s.mu.RUnlock()

	if err == nil {
		err = s.files.write(s.opts.DBPath, data)
	}

	if err != nil {
		s.sched.Abort(ticket)
		s.log.Error("failed to save players database", "path", s.opts.DBPath, "error", err)

		return err
	}

	s.sched.Complete(ticket)
	s.log.Debug("players database saved",
		"priority", ticket.Priority, "bytes", len(data), "took", time.Since(began))

	return nil
}

// BackupTick copies the primary file over the backup. Failures are logged
// and returned but never affect the in-memory document.
func (s *Store) BackupTick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.files.Copy(s.opts.DBPath, s.opts.BackupPath)
	if err != nil {
		s.log.Error("failed to back up players database", "path", s.opts.DBPath)
		s.log.Debug("backup failure detail", "error", err)

		return err
	}

	s.log.Debug("players database backed up", "path", s.opts.BackupPath)

	return nil
}

// Run drives the flush and backup tickers until ctx is done, then closes
// the store (flushing anything pending) and returns the close error.
func (s *Store) Run(ctx context.Context) error {
	flushTicker := time.NewTicker(s.opts.FlushInterval)
	defer flushTicker.Stop()

	backupTicker := time.NewTicker(s.opts.BackupInterval)
	defer backupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Close()
		case <-flushTicker.C:
			_, err := s.FlushTick(ctx)
			if errors.Is(err, ErrClosed) {
				return nil
			}
		case <-backupTicker.C:
			_ = s.BackupTick(ctx)
		}
	}
}

// Close flushes the document if a write is pending and releases the process
// lock. Further mutations and ticks fail with [ErrClosed]. Close is
// idempotent.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.phase = PhaseClosed
		s.mu.Unlock()

		var errs []error

		if s.sched.Pending() != PriorityNone {
			errs = append(errs, s.flush(context.Background()))
		}

		if s.lock != nil {
			errs = append(errs, s.lock.Close())
		}

		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.closed
}
