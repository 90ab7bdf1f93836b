package playersdb

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_CurrentVersionIsNoop(t *testing.T) {
	t.Parallel()

	doc := sampleDocument()

	require.NoError(t, Migrate(doc, CurrentVersion, discardLogger()))
	require.NoError(t, Migrate(doc, CurrentVersion, discardLogger()))

	if diff := cmp.Diff(sampleDocument(), doc); diff != "" {
		t.Fatalf("migrating a current document changed it (-want +got):\n%s", diff)
	}
}

func TestMigrate_V0WipesEverything(t *testing.T) {
	t.Parallel()

	doc := sampleDocument()
	doc.Version = 0

	require.NoError(t, Migrate(doc, 0, discardLogger()))

	assert.Equal(t, CurrentVersion, doc.Version)
	assert.Empty(t, doc.Players)
	assert.Empty(t, doc.Actions)
	assert.Empty(t, doc.PendingWL)
	assert.NotNil(t, doc.Players)
}

func TestMigrate_V1DedupesActionIDs(t *testing.T) {
	t.Parallel()

	doc := &Document{
		Version: 1,
		Players: []Player{{License: "abc"}},
		Actions: []Action{
			{ID: "A1", Type: ActionBan},
			{ID: "A1", Type: ActionWarn},
		},
		PendingWL: []PendingWL{{ID: "R1", License: "x"}},
	}

	require.NoError(t, Migrate(doc, 1, discardLogger()))

	assert.Equal(t, CurrentVersion, doc.Version)
	assert.Equal(t, []PendingWL{}, doc.PendingWL)
	assert.Equal(t, []Player{{License: "abc"}}, doc.Players)
	require.Len(t, doc.Actions, 2)

	assert.Equal(t, "A1", doc.Actions[0].ID, "first occurrence keeps its id")
	assert.NotEqual(t, doc.Actions[0].ID, doc.Actions[1].ID)
	assert.Equal(t, ActionWarn, doc.Actions[1].Type)
	assert.Regexp(t, `^W[0-9A-Z]{3}-[0-9A-Z]{4}$`, doc.Actions[1].ID)
}

func TestMigrate_V1DedupeIsDeterministic(t *testing.T) {
	t.Parallel()

	build := func() *Document {
		return &Document{
			Version: 1,
			Actions: []Action{
				{ID: "X", Type: ActionBan},
				{ID: "X", Type: ActionBan},
				{ID: "Y", Type: ActionWarn},
				{ID: "X", Type: ActionWarn},
				{ID: "Y", Type: ActionWarn},
			},
		}
	}

	first, second := build(), build()
	require.NoError(t, Migrate(first, 1, discardLogger()))
	require.NoError(t, Migrate(second, 1, discardLogger()))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("migration is not deterministic (-first +second):\n%s", diff)
	}

	seen := map[string]bool{}
	for _, a := range first.Actions {
		assert.False(t, seen[a.ID], "duplicate id %s after migration", a.ID)
		seen[a.ID] = true
	}
}

func TestMigrate_FatalVersions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from int
		want error
	}{
		{name: "newer than supported", from: CurrentVersion + 1, want: ErrSchemaTooNew},
		{name: "unrecognized", from: versionUnrecognized, want: ErrInvalidVersion},
		{name: "negative", from: -7, want: ErrInvalidVersion},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doc := sampleDocument()
			doc.Version = tc.from

			err := Migrate(doc, tc.from, discardLogger())
			require.ErrorIs(t, err, tc.want)

			// Nothing was touched before rejecting.
			assert.Equal(t, sampleDocument().Actions, doc.Actions)
		})
	}
}

func TestMigrate_NoPathToCurrentIsFatal(t *testing.T) {
	t.Parallel()

	steps := []migrationStep{
		{from: 0, to: 1, apply: wipeAllCollections},
		// no 1 -> 2 step
		{from: 2, to: 3, apply: func(*Document, *slog.Logger) error { return nil }},
	}

	doc := NewDocument()

	err := migrate(doc, 0, 3, steps, discardLogger())
	require.ErrorIs(t, err, ErrNoMigrationPath)
	assert.Equal(t, 1, doc.Version)
}

func TestMigrate_StepFailureIsFatal(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	steps := []migrationStep{
		{from: 0, to: 1, apply: func(*Document, *slog.Logger) error { return boom }},
	}

	doc := NewDocument()

	err := migrate(doc, 0, 1, steps, discardLogger())
	require.ErrorIs(t, err, ErrMigrationStep)
	require.ErrorIs(t, err, boom)
}

func TestMigrate_StepsAreAppliedInOrderFromAnyOlderVersion(t *testing.T) {
	t.Parallel()

	var order []int

	record := func(to int) func(*Document, *slog.Logger) error {
		return func(*Document, *slog.Logger) error {
			order = append(order, to)

			return nil
		}
	}

	steps := []migrationStep{
		{from: 0, to: 1, apply: record(1)},
		{from: 1, to: 2, apply: record(2)},
		{from: 2, to: 3, apply: record(3)},
	}

	doc := NewDocument()
	require.NoError(t, migrate(doc, 1, 3, steps, discardLogger()))

	assert.Equal(t, []int{2, 3}, order)
	assert.Equal(t, 3, doc.Version)
}
