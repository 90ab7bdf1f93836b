package playersdb

import (
	"fmt"
	"log/slog"
)

// migrationStep upgrades a document from version from to version to.
// Steps mutate the document in place; the migrator bumps Version.
type migrationStep struct {
	from  int
	to    int
	apply func(doc *Document, logger *slog.Logger) error
}

// migrationSteps is ordered by from. New schema versions append a step.
var migrationSteps = []migrationStep{
	{from: 0, to: 1, apply: wipeAllCollections},
	{from: 1, to: 2, apply: dedupeActionIDs},
}

// Migrate upgrades doc from version from to [CurrentVersion].
//
// A document already at the current version is left untouched. A version
// that is negative or newer than this build, a failing step, or a version
// with no path to the current one all return an error that must abort
// startup; doc may be partially migrated in that case and must be discarded.
func Migrate(doc *Document, from int, logger *slog.Logger) error {
	return migrate(doc, from, CurrentVersion, migrationSteps, logger)
}

func migrate(doc *Document, from, current int, steps []migrationStep, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if from == current {
		return nil
	}

	if from < 0 {
		return fmt.Errorf("%w: version field is not a number", ErrInvalidVersion)
	}

	if from > current {
		return fmt.Errorf("%w: database is on v%d and this build supports up to v%d (downgraded?)",
			ErrSchemaTooNew, from, current)
	}

	doc.Version = from

	for _, step := range steps {
		if doc.Version != step.from || step.to > current {
			continue
		}

		logger.Warn("migrating players database", "from", step.from, "to", step.to)

		if err := step.apply(doc, logger); err != nil {
			return fmt.Errorf("%w: v%d to v%d: %w", ErrMigrationStep, step.from, step.to, err)
		}

		doc.Version = step.to
	}

	if doc.Version != current {
		logger.Error("players database could not be migrated",
			"version", doc.Version, "supported", current)

		return fmt.Errorf("%w: stuck at v%d, want v%d", ErrNoMigrationPath, doc.Version, current)
	}

	return nil
}

// wipeAllCollections resets pre-v1 stores, whose layout is not readable.
func wipeAllCollections(doc *Document, logger *slog.Logger) error {
	logger.Warn("wiping all players database data",
		"players", len(doc.Players), "actions", len(doc.Actions), "pending_wl", len(doc.PendingWL))

	doc.Players = []Player{}
	doc.Actions = []Action{}
	doc.PendingWL = []PendingWL{}

	return nil
}

// dedupeActionIDs gives every action whose ID was already seen earlier in the
// list a freshly generated ID, then wipes the pending whitelist.
func dedupeActionIDs(doc *Document, logger *slog.Logger) error {
	seen := make(map[string]struct{}, len(doc.Actions))

	var dupes []int

	for i, a := range doc.Actions {
		if _, ok := seen[a.ID]; ok {
			dupes = append(dupes, i)

			continue
		}

		seen[a.ID] = struct{}{}
	}

	logger.Warn("fixing duplicated action ids", "count", len(dupes))

	for _, i := range dupes {
		action := &doc.Actions[i]

		id, err := GenerateActionID(seen, action.Type)
		if err != nil {
			return err
		}

		logger.Debug("action id replaced", "old", action.ID, "new", id)

		action.ID = id
		seen[id] = struct{}{}
	}

	doc.PendingWL = []PendingWL{}

	return nil
}
