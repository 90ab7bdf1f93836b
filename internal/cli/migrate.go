package cli

import (
	"context"
	"log/slog"

	"github.com/calvinalkan/playersdb/internal/config"

	flag "github.com/spf13/pflag"
)

// MigrateCmd returns the migrate command.
func MigrateCmd(cfg *config.Config, logger *slog.Logger) *Command {
	return &Command{
		Flags: flag.NewFlagSet("migrate", flag.ContinueOnError),
		Usage: "migrate",
		Short: "Upgrade the database to the current schema",
		Long: "Open the database, migrate it to the current schema version and write it. " +
			"Running it on a current database only rewrites the file.",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return execMigrate(ctx, io, cfg, logger)
		},
	}
}

func execMigrate(ctx context.Context, io *IO, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, io, cfg, logger)
	if err != nil {
		return err
	}

	flushErr := store.Flush(ctx)
	closeErr := store.Close()

	if flushErr != nil {
		return flushErr
	}

	if closeErr != nil {
		return closeErr
	}

	report := store.Startup()
	if report.Migrated {
		io.Printf("migrated %s from version %d\n", store.DBPath(), report.FromVersion)
	} else {
		io.Printf("%s is already current\n", store.DBPath())
	}

	return nil
}
