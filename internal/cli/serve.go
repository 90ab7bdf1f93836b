package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/calvinalkan/playersdb/internal/config"

	flag "github.com/spf13/pflag"
)

// RunCmd returns the run command.
func RunCmd(cfg *config.Config, logger *slog.Logger, stdin io.Reader, env map[string]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("run", flag.ContinueOnError),
		Usage: "run",
		Short: "Host the database with an operator console",
		Long: "Open the database and keep it saved and backed up until the console is closed " +
			"or the process is interrupted. Pending changes are written before exit.",
		Footer: consoleHelp,
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return execRun(ctx, io, cfg, logger, newLineReader(stdin, historyFile(env)))
		},
	}
}

// consoleGrace bounds how long shutdown waits for the console to notice its
// input was closed.
const consoleGrace = time.Second

func execRun(ctx context.Context, io *IO, cfg *config.Config, logger *slog.Logger, reader lineReader) error {
	closeReader := sync.OnceValue(reader.Close)
	defer func() { _ = closeReader() }()

	store, err := openStore(ctx, io, cfg, logger)
	if err != nil {
		return err
	}

	report := store.Startup()
	io.Printf("players database ready: %s (source=%s)\n", store.DBPath(), report.Source)
	io.Println("Type 'help' for available commands.")

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	runDone := make(chan error, 1)

	go func() { runDone <- store.Run(runCtx) }()

	c := &console{store: store, io: io, reader: reader, now: time.Now}
	consoleDone := make(chan error, 1)

	go func() { consoleDone <- c.loop(runCtx) }()

	var consoleErr error

	select {
	case consoleErr = <-consoleDone:
	case <-ctx.Done():
		io.Println("shutting down")

		// Unblock a pending prompt so the console stops before the store closes.
		_ = closeReader()

		select {
		case <-consoleDone:
		case <-time.After(consoleGrace):
			logger.Debug("console still blocked after its input was closed")
		}
	}

	stop()

	// Run closes the store, writing anything still pending.
	runErr := <-runDone

	err = errors.Join(consoleErr, runErr)
	if err != nil {
		return err
	}

	io.Println("bye")

	return nil
}
