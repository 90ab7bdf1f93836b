package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/calvinalkan/playersdb/internal/config"
	"github.com/calvinalkan/playersdb/internal/playersdb"

	flag "github.com/spf13/pflag"
)

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. A signal on it cancels the running command, which for
// "run" means a final flush and a clean exit.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals, err := parseGlobalFlags(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, nil)

		return 1
	}

	if globals.help || len(globals.remaining) == 0 {
		printUsage(out, nil)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: globals.workDir,
		ConfigPath:      globals.configPath,
		DataDirOverride: globals.dataDir,
		Verbose:         globals.verbose,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	logger := newLogger(errOut, cfg.Verbose)
	commands := allCommands(&cfg, logger, stdin, env)

	name := globals.remaining[0]
	if name == "help" {
		printUsage(out, commands)

		return 0
	}

	cmd := findCommand(commands, name)
	if cmd == nil {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", ErrUnknownCommand, name))
		printUsage(errOut, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case sig := <-sigCh:
				logger.Info("received signal, shutting down", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o := NewIO(out, errOut)

	code := cmd.Run(ctx, o, globals.remaining[1:])
	if code != 0 {
		return code
	}

	return o.Finish()
}

type globalFlags struct {
	workDir    string
	configPath string
	dataDir    string
	verbose    bool
	help       bool
	remaining  []string
}

// parseGlobalFlags parses the flags before the command name. args[0] is the
// program name.
func parseGlobalFlags(args []string) (globalFlags, error) {
	var g globalFlags

	if len(args) < 2 {
		return g, nil
	}

	flags := flag.NewFlagSet("playersdb", flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(io.Discard)

	flags.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	flags.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	flags.StringVar(&g.dataDir, "data-dir", "", "Override the data `dir`")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Log routine saves and backups")
	flags.BoolVarP(&g.help, "help", "h", false, "Show help")

	err := flags.Parse(args[1:])
	if err != nil {
		return globalFlags{}, err
	}

	g.remaining = flags.Args()

	return g, nil
}

func allCommands(cfg *config.Config, logger *slog.Logger, stdin io.Reader, env map[string]string) []*Command {
	return []*Command{
		RunCmd(cfg, logger, stdin, env),
		InspectCmd(cfg, logger),
		MigrateCmd(cfg, logger),
		BackupCmd(cfg, logger),
		RestoreCmd(cfg, logger),
		PrintConfigCmd(cfg),
	}
}

func findCommand(commands []*Command, name string) *Command {
	for _, c := range commands {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

// newLogger logs text to errOut. Routine flush and backup messages are at
// Debug and only shown when verbose.
func newLogger(errOut io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
}

// openStore opens the configured database and reports how startup went.
func openStore(ctx context.Context, o *IO, cfg *config.Config, logger *slog.Logger) (*playersdb.Store, error) {
	store, err := playersdb.Open(ctx, cfg.StoreOptions(logger))
	if err != nil {
		if errors.Is(err, playersdb.ErrLocked) {
			return nil, fmt.Errorf("%w (is another playersdb process running?)", err)
		}

		return nil, err
	}

	if store.Startup().Source == playersdb.PhaseRecovered {
		o.Warn("database restored from backup "+store.BackupPath(),
			"changes since the last backup may be lost")
	}

	return store, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, `playersdb - players database host

Usage: playersdb [options] <command> [args]

Options:
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
      --data-dir <dir>   Override the data directory
  -v, --verbose          Log routine saves and backups

Commands:`)

	if commands == nil {
		commands = allCommands(&config.Config{}, nil, nil, nil)
	}

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}

	fprintln(w, `  help                   Show this help

Run 'playersdb <command> --help' for command flags.`)
}
