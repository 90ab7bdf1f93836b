package playersdb

import (
	"errors"
	"strings"
)

// Error variables for database operations.
var (
	ErrLoad            = errors.New("cannot load database")
	ErrCopy            = errors.New("cannot copy database file")
	ErrWrite           = errors.New("cannot write database")
	ErrInvalidPriority = errors.New("unknown priority flag")
	ErrSchemaTooNew    = errors.New("database schema is newer than supported")
	ErrInvalidVersion  = errors.New("database version is not a non-negative integer")
	ErrNoMigrationPath = errors.New("no migration path to current schema")
	ErrMigrationStep   = errors.New("migration step failed")
	ErrIDGeneration    = errors.New("no unique action id after repeated attempts")
	ErrLocked          = errors.New("database is in use by another process")
	ErrClosed          = errors.New("database is closed")
)

// LoadError reports a failure to read or decode the document at Path.
// It always matches errors.Is(err, ErrLoad).
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return "load " + e.Path + ": " + e.Err.Error()
}

// Unwrap exposes both ErrLoad and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}

// Startup stages reported by [FatalError].
const (
	StageLoad    = "load"
	StageMigrate = "migrate"
)

// FatalError is returned by [Open] when startup cannot reach a consistent
// document. The host decides the shutdown policy.
//
// The message carries the primary cause, the recovery cause (if any) and the
// file paths so an operator can inspect or repair the file:
//
//	load database: <cause>; restore from backup: <cause> (db_path=X backup_path=Y)
//
// Use [errors.Is] against the sentinels to classify it:
//
//	if errors.Is(err, playersdb.ErrSchemaTooNew) { ... }
type FatalError struct {
	Stage      string
	DBPath     string
	BackupPath string

	// Err is the primary cause.
	Err error

	// RecoveryErr is the backup restore failure, set only for [StageLoad].
	RecoveryErr error
}

func (e *FatalError) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder

	switch e.Stage {
	case StageLoad:
		b.WriteString("load database")
	case StageMigrate:
		b.WriteString("migrate database")
	default:
		b.WriteString(e.Stage)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	if e.RecoveryErr != nil {
		b.WriteString("; restore from backup: ")
		b.WriteString(e.RecoveryErr.Error())
	}

	if suffix := e.suffix(); suffix != "" {
		b.WriteString(" ")
		b.WriteString(suffix)
	}

	return b.String()
}

// Unwrap returns the primary and recovery causes.
func (e *FatalError) Unwrap() []error {
	if e == nil {
		return nil
	}

	var errs []error

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	if e.RecoveryErr != nil {
		errs = append(errs, e.RecoveryErr)
	}

	return errs
}

func (e *FatalError) suffix() string {
	var parts []string

	if e.DBPath != "" {
		parts = append(parts, "db_path="+e.DBPath)
	}

	if e.BackupPath != "" {
		parts = append(parts, "backup_path="+e.BackupPath)
	}

	if len(parts) == 0 {
		return ""
	}

	return "(" + strings.Join(parts, " ") + ")"
}
