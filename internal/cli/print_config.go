package cli

import (
	"context"
	"strings"

	"github.com/calvinalkan/playersdb/internal/config"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and where it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			execPrintConfig(io, cfg)

			return nil
		},
	}
}

func execPrintConfig(io *IO, cfg *config.Config) {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("data_dir=" + cfg.DataDirAbs)
	io.Println("db_path=" + cfg.DBPath)
	io.Println("backup_path=" + cfg.BackupPath)
	io.Println("flush_interval=" + cfg.FlushInterval.String())
	io.Println("backup_interval=" + cfg.BackupInterval.String())
	io.Printf("wipe_pending_wl_on_start=%t\n", cfg.WipePendingWLOnStart)
	io.Printf("pretty=%t\n", cfg.Pretty)
	io.Printf("verbose=%t\n", cfg.Verbose)

	io.Println("")
	io.Println("# sources")

	src := cfg.Sources
	if src.Global == "" && src.Project == "" && len(src.Env) == 0 {
		io.Println("(defaults only)")

		return
	}

	if src.Global != "" {
		io.Println("global_config=" + src.Global)
	}

	if src.Project != "" {
		io.Println("project_config=" + src.Project)
	}

	if len(src.Env) > 0 {
		io.Println("env=" + strings.Join(src.Env, ","))
	}
}
