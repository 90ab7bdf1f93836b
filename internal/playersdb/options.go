package playersdb

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/calvinalkan/playersdb/internal/fs"
)

// Default file names inside the data directory.
const (
	DefaultDBFile     = "playersDB.json"
	DefaultBackupFile = "playersDB.backup.json"
)

// Default tick cadences. The flush tick runs at the High threshold so every
// priority is caught within one tick of becoming due.
const (
	DefaultFlushInterval  = 28 * time.Second
	DefaultBackupInterval = 300 * time.Second
)

// Options configures [Open].
type Options struct {
	// DBPath is the primary document file. Required.
	DBPath string

	// BackupPath is the backup copy. Defaults to DBPath with ".backup"
	// inserted before the extension.
	BackupPath string

	// FS defaults to [fs.NewReal].
	FS fs.FS

	// Logger defaults to [slog.Default]. Routine flush and backup messages
	// are logged at Debug.
	Logger *slog.Logger

	// Now defaults to [time.Now]. Tests inject a fake clock here.
	Now func() time.Time

	// Thresholds defaults to [DefaultThresholds].
	Thresholds Thresholds

	FlushInterval  time.Duration
	BackupInterval time.Duration

	// Pretty writes indented JSON.
	Pretty bool

	// WipePendingWLOnStart clears the pending whitelist once the store is ready.
	WipePendingWLOnStart bool
}

func (o Options) withDefaults() (Options, error) {
	if o.DBPath == "" {
		return Options{}, errors.New("db path is required")
	}

	if o.BackupPath == "" {
		o.BackupPath = DefaultBackupPath(o.DBPath)
	}

	if o.FS == nil {
		o.FS = fs.NewReal()
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	if o.Thresholds == (Thresholds{}) {
		o.Thresholds = DefaultThresholds()
	}

	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}

	if o.BackupInterval <= 0 {
		o.BackupInterval = DefaultBackupInterval
	}

	return o, nil
}

// DefaultBackupPath derives the backup path for dbPath:
// "data/playersDB.json" becomes "data/playersDB.backup.json".
func DefaultBackupPath(dbPath string) string {
	ext := filepath.Ext(dbPath)

	return strings.TrimSuffix(dbPath, ext) + ".backup" + ext
}

// LockPath returns the process lock file guarding dbPath.
func LockPath(dbPath string) string {
	return dbPath + ".lock"
}
