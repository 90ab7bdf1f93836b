package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/playersdb/internal/config"
	"github.com/calvinalkan/playersdb/internal/playersdb"

	flag "github.com/spf13/pflag"
)

// summary is what inspect reports about a database.
type summary struct {
	Path          string         `json:"path"            yaml:"path"`
	Version       int            `json:"version"         yaml:"version"`
	Source        string         `json:"source"          yaml:"source"`
	FromVersion   int            `json:"from_version"    yaml:"from_version"`
	Migrated      bool           `json:"migrated"        yaml:"migrated"`
	Players       int            `json:"players"         yaml:"players"`
	Actions       int            `json:"actions"         yaml:"actions"`
	PendingWL     int            `json:"pending_wl"      yaml:"pending_wl"`
	ActionsByType map[string]int `json:"actions_by_type" yaml:"actions_by_type"`
}

// InspectCmd returns the inspect command.
func InspectCmd(cfg *config.Config, logger *slog.Logger) *Command {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	format := flags.StringP("format", "f", "text", "Output `format`: text, json or yaml")

	return &Command{
		Flags: flags,
		Usage: "inspect [--format X]",
		Short: "Summarize the database",
		Long: "Open the database (restoring from backup and migrating if needed) " +
			"and print its version and collection sizes.",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return execInspect(ctx, io, cfg, logger, *format)
		},
	}
}

func execInspect(ctx context.Context, io *IO, cfg *config.Config, logger *slog.Logger, format string) error {
	switch format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("%w: %q (want text, json or yaml)", ErrInvalidFormat, format)
	}

	store, err := openStore(ctx, io, cfg, logger)
	if err != nil {
		return err
	}

	s := summarize(store)

	closeErr := store.Close()
	if closeErr != nil {
		return closeErr
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}

		io.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		io.Printf("%s", data)
	default:
		printSummary(io, s)
	}

	return nil
}

func summarize(store *playersdb.Store) summary {
	report := store.Startup()

	s := summary{
		Path:          store.DBPath(),
		Source:        report.Source.String(),
		FromVersion:   report.FromVersion,
		Migrated:      report.Migrated,
		ActionsByType: map[string]int{},
	}

	store.View(func(doc *playersdb.Document) {
		s.Version = doc.Version
		s.Players = len(doc.Players)
		s.Actions = len(doc.Actions)
		s.PendingWL = len(doc.PendingWL)

		for _, a := range doc.Actions {
			s.ActionsByType[a.Type]++
		}
	})

	return s
}

func printSummary(io *IO, s summary) {
	io.Println("path=" + s.Path)
	io.Printf("version=%d\n", s.Version)
	io.Println("source=" + s.Source)

	if s.Migrated {
		io.Printf("migrated_from=%d\n", s.FromVersion)
	}

	io.Printf("players=%d\n", s.Players)
	io.Printf("actions=%d\n", s.Actions)

	for _, typ := range slices.Sorted(maps.Keys(s.ActionsByType)) {
		io.Printf("actions.%s=%d\n", typ, s.ActionsByType[typ])
	}

	io.Printf("pending_wl=%d\n", s.PendingWL)
}
