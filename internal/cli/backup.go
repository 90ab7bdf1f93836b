package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/calvinalkan/playersdb/internal/config"
	"github.com/calvinalkan/playersdb/internal/fs"
	"github.com/calvinalkan/playersdb/internal/playersdb"

	flag "github.com/spf13/pflag"
)

// BackupCmd returns the backup command.
func BackupCmd(cfg *config.Config, logger *slog.Logger) *Command {
	return &Command{
		Flags: flag.NewFlagSet("backup", flag.ContinueOnError),
		Usage: "backup",
		Short: "Copy the database over its backup",
		Long:  "Open the database to make sure it loads, then copy the primary file over the backup file.",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return execBackup(ctx, io, cfg, logger)
		},
	}
}

func execBackup(ctx context.Context, io *IO, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, io, cfg, logger)
	if err != nil {
		return err
	}

	// Startup changes that have not reached the primary file yet must be
	// written before it is copied.
	var flushErr error
	if store.Pending() != playersdb.PriorityNone {
		flushErr = store.Flush(ctx)
	}

	var backupErr error
	if flushErr == nil {
		backupErr = store.BackupTick(ctx)
	}

	err = errors.Join(flushErr, backupErr, store.Close())
	if err != nil {
		return err
	}

	io.Println("backed up " + store.DBPath() + " to " + store.BackupPath())

	return nil
}

// RestoreCmd returns the restore command.
func RestoreCmd(cfg *config.Config, logger *slog.Logger) *Command {
	return &Command{
		Flags: flag.NewFlagSet("restore", flag.ContinueOnError),
		Usage: "restore",
		Short: "Replace the database with its backup",
		Long: "Copy the backup file over the primary file. The backup must load cleanly. " +
			"Refuses while another process has the database open.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execRestore(io, cfg, logger, fs.NewReal())
		},
	}
}

func execRestore(io *IO, cfg *config.Config, logger *slog.Logger, fsys fs.FS) error {
	lock, err := fsys.Lock(playersdb.LockPath(cfg.DBPath))
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return fmt.Errorf("%w: %s (stop the running process first)", playersdb.ErrLocked, cfg.DBPath)
		}

		return err
	}

	defer func() { _ = lock.Close() }()

	files := playersdb.NewFileStore(fsys, cfg.Pretty)

	_, err = files.Load(cfg.BackupPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackupInvalid, err)
	}

	err = files.Copy(cfg.BackupPath, cfg.DBPath)
	if err != nil {
		return err
	}

	logger.Info("players database restored from backup", "path", cfg.DBPath, "backup_path", cfg.BackupPath)
	io.Println("restored " + cfg.DBPath + " from " + cfg.BackupPath)

	return nil
}
