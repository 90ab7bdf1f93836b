package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one playersdb subcommand: its flags, help text and handler.
type Command struct {
	// Flags holds the subcommand's own flags. Global flags such as --cwd are
	// parsed by [Run] before the subcommand is selected.
	Flags *flag.FlagSet

	// Usage starts with the subcommand name, e.g. "inspect [--format json|yaml]".
	Usage string

	// Short appears next to Usage in the top-level command list.
	Short string

	// Long replaces Short in "playersdb <cmd> --help" when set.
	Long string

	// Footer is appended to the subcommand help, below the flags.
	Footer string

	// MaxArgs caps positional arguments; none of the current subcommands
	// take any.
	MaxArgs int

	// Exec receives the positional arguments left after flag parsing.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name is the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine formats the command for the top-level usage listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-22s %s", c.Usage, c.Short)
}

// PrintHelp writes the subcommand help to o's stdout.
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: playersdb", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()

		o.Println()
		o.Println("Flags:")
		o.Printf("%s", buf.String())
	}

	if c.Footer != "" {
		o.Println()
		o.Printf("%s", c.Footer)
	}
}

// Run parses args against Flags and calls Exec, returning the exit code.
// Usage errors print the error followed by the subcommand help on stderr.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(io.Discard)

	err := c.Flags.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		c.PrintHelp(o)
		return 0
	}

	if err == nil && len(c.Flags.Args()) > c.MaxArgs {
		err = fmt.Errorf("unexpected arguments: %s", strings.Join(c.Flags.Args()[c.MaxArgs:], " "))
	}

	if err != nil {
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	return 0
}
