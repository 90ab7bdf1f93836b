package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/calvinalkan/playersdb/internal/playersdb"
)

const consoleHelp = `Console commands:
  status                       Show database state and pending writes
  players                      List players
  actions                      List actions
  warn <license> <reason...>   Record a warning
  ban <license> <reason...>    Record a ban
  flag <low|medium|high>       Flag a pending write
  flush                        Write the database now
  backup                       Copy the database over its backup
  help                         Show this help
  quit                         Flush and exit
`

// consoleAuthor is recorded on actions created from the console.
const consoleAuthor = "console"

// lineReader is the part of [liner.State] the console uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// newLineReader uses liner on an interactive terminal and a plain line
// scanner otherwise (pipes, tests).
func newLineReader(stdin io.Reader, historyPath string) lineReader {
	if f, ok := stdin.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		state.SetCompleter(completeCommand)

		if historyPath != "" {
			if hf, err := os.Open(historyPath); err == nil {
				_, _ = state.ReadHistory(hf)
				_ = hf.Close()
			}
		}

		return &linerReader{State: state, historyPath: historyPath}
	}

	if stdin == nil {
		stdin = strings.NewReader("")
	}

	return &scanReader{src: stdin, sc: bufio.NewScanner(stdin)}
}

type linerReader struct {
	*liner.State
	historyPath string
}

// Close saves history and restores the terminal.
func (r *linerReader) Close() error {
	if r.historyPath != "" {
		if f, err := os.Create(r.historyPath); err == nil {
			_, _ = r.WriteHistory(f)
			_ = f.Close()
		}
	}

	return r.State.Close()
}

type scanReader struct {
	src io.Reader
	sc  *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	if err := r.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (r *scanReader) AppendHistory(string) {}

// Close closes the source when it can be closed, which ends a blocked Prompt.
func (r *scanReader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func historyFile(env map[string]string) string {
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".playersdb_history")
	}

	return ""
}

var consoleCommands = []string{
	"status", "players", "actions", "warn", "ban",
	"flag", "flush", "backup", "help", "quit", "exit",
}

func completeCommand(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range consoleCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

// console is the interactive loop of the run command.
type console struct {
	store  *playersdb.Store
	io     *IO
	reader lineReader
	now    func() time.Time
}

// errQuit ends the loop on "quit".
var errQuit = errors.New("quit")

// loop reads commands until quit, EOF, or ctx is done. Command errors are
// printed and the loop continues.
func (c *console) loop(ctx context.Context) error {
	for {
		line, err := c.reader.Prompt("playersdb> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		if ctx.Err() != nil {
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		c.reader.AppendHistory(line)

		err = c.exec(ctx, strings.Fields(line))
		if errors.Is(err, errQuit) {
			return nil
		}

		if err != nil {
			c.io.Println("error:", err)
		}
	}
}

func (c *console) exec(ctx context.Context, fields []string) error {
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		c.io.Printf("%s", consoleHelp)
	case "status":
		c.status()
	case "players":
		c.players()
	case "actions":
		c.actions()
	case "warn":
		return c.addAction(playersdb.ActionWarn, args)
	case "ban":
		return c.addAction(playersdb.ActionBan, args)
	case "flag":
		return c.flag(args)
	case "flush":
		err := c.store.Flush(ctx)
		if err != nil {
			return err
		}

		c.io.Println("saved", c.store.DBPath())
	case "backup":
		err := c.store.BackupTick(ctx)
		if err != nil {
			return err
		}

		c.io.Println("backed up to", c.store.BackupPath())
	default:
		return fmt.Errorf("%w: %s (type 'help' for commands)", ErrUnknownCommand, cmd)
	}

	return nil
}

func (c *console) status() {
	report := c.store.Startup()
	phase := c.store.Phase()

	c.store.View(func(doc *playersdb.Document) {
		c.io.Printf("phase=%s source=%s version=%d\n", phase, report.Source, doc.Version)
		c.io.Printf("players=%d actions=%d pending_wl=%d\n", len(doc.Players), len(doc.Actions), len(doc.PendingWL))
	})

	c.io.Printf("pending_write=%s\n", c.store.Pending())
}

func (c *console) players() {
	c.store.View(func(doc *playersdb.Document) {
		if len(doc.Players) == 0 {
			c.io.Println("(no players)")

			return
		}

		for _, p := range doc.Players {
			c.io.Printf("%s  %s  play_time=%dm\n", p.License, p.Name, p.PlayTime)
		}
	})
}

func (c *console) actions() {
	c.store.View(func(doc *playersdb.Document) {
		if len(doc.Actions) == 0 {
			c.io.Println("(no actions)")

			return
		}

		for _, a := range doc.Actions {
			c.io.Printf("%s  %-5s  %s  %s\n", a.ID, a.Type, strings.Join(a.Identifiers, ","), a.Reason)
		}
	})
}

func (c *console) addAction(actionType string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: %s <license> <reason...>", ErrMissingArgs, actionType)
	}

	action, err := c.store.AddAction(playersdb.PriorityHigh, playersdb.Action{
		Type:        actionType,
		Author:      consoleAuthor,
		Reason:      strings.Join(args[1:], " "),
		Timestamp:   c.now().Unix(),
		Identifiers: []string{"license:" + args[0]},
	})
	if err != nil {
		return err
	}

	c.io.Println("added", action.Type, action.ID)

	return nil
}

func (c *console) flag(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: flag <low|medium|high>", ErrMissingArgs)
	}

	p, err := playersdb.ParsePriority(args[0])
	if err != nil {
		return err
	}

	err = c.store.FlagDirty(p)
	if err != nil {
		return err
	}

	c.io.Println("pending write:", c.store.Pending())

	return nil
}
