package playersdb

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/playersdb/internal/fs"
	"github.com/calvinalkan/playersdb/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// sampleDocument returns a current-version document touching every modeled
// field plus preserved action keys.
func sampleDocument() *Document {
	return &Document{
		Version: CurrentVersion,
		Players: []Player{{
			License:          "abc123",
			Name:             "Alice <3",
			PlayTime:         42,
			TsJoined:         1700000000,
			TsLastConnection: 1700003600,
			Notes:            &PlayerNotes{Text: "ok", LastAdmin: "bob", TsLastEdit: 1700000100},
		}},
		Actions: []Action{{
			ID:          "BK3F-9Q2M",
			Type:        ActionBan,
			Author:      "bob",
			Reason:      "cheating & griefing",
			Timestamp:   1700000200,
			Identifiers: []string{"license:abc123"},
			Extra: Extra{
				"expiration": json.RawMessage(`false`),
				"playerName": json.RawMessage(`"Alice <3"`),
			},
		}},
		PendingWL: []PendingWL{{
			ID:            "R1234",
			License:       "def456",
			Name:          "Carol",
			TsLastAttempt: 1700000300,
		}},
	}
}

// testEnv is a temp data directory with a fault-injecting filesystem and a
// manual clock. Stores see the faulty filesystem through a strict tracer, so
// any real I/O error other than a missing file fails the test.
type testEnv struct {
	t          *testing.T
	dir        string
	dbPath     string
	backupPath string
	fs         *fs.Faulty
	strict     *fs.Strict
	clock      *testutil.Clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", DefaultDBFile)
	faulty := fs.NewFaulty(fs.NewReal())

	return &testEnv{
		t:          t,
		dir:        dir,
		dbPath:     dbPath,
		backupPath: DefaultBackupPath(dbPath),
		fs:         faulty,
		strict:     fs.NewStrict(t, faulty),
		clock:      testutil.NewClock(),
	}
}

func (e *testEnv) options() Options {
	return Options{
		DBPath: e.dbPath,
		FS:     e.strict,
		Logger: discardLogger(),
		Now:    e.clock.Now,
	}
}

func (e *testEnv) open(mutators ...func(*Options)) (*Store, error) {
	opts := e.options()
	for _, m := range mutators {
		m(&opts)
	}

	return Open(context.Background(), opts)
}

func (e *testEnv) mustOpen(mutators ...func(*Options)) *Store {
	e.t.Helper()

	store, err := e.open(mutators...)
	require.NoError(e.t, err)

	e.t.Cleanup(func() { _ = store.Close() })

	return store
}

func (e *testEnv) writeFile(path, content string) {
	e.t.Helper()

	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
}

func (e *testEnv) writeDoc(path string, doc *Document) {
	e.t.Helper()

	data, err := Encode(doc, false)
	require.NoError(e.t, err)

	e.writeFile(path, string(data))
}

func (e *testEnv) readDoc(path string) *Document {
	e.t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(e.t, err)

	doc, err := Decode(data)
	require.NoError(e.t, err)

	return doc
}
