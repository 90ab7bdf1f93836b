// Package playersdb is the embedded document store that persists players,
// actions and the pending whitelist for a long-running admin process.
//
// The whole state lives in one [Document] held in memory by a [Store] and
// persisted as a single JSON file. Writes are debounced by a [Scheduler]:
// collaborators mutate the document and flag a [Priority], and a periodic
// flush tick decides whether to write now or keep coalescing. A second
// periodic tick copies the file to a backup that [Open] restores from when
// the primary file cannot be loaded. Older on-disk layouts are upgraded by
// [Migrate] before the store becomes ready.
//
// Typical host wiring:
//
//	store, err := playersdb.Open(ctx, playersdb.Options{DBPath: path})
//	if err != nil {
//	    return err // *FatalError: stop the process
//	}
//	go store.Run(ctx)
//
//	err = store.Update(playersdb.PriorityHigh, func(doc *playersdb.Document) error {
//	    doc.Actions = append(doc.Actions, ban)
//	    return nil
//	})
package playersdb

import (
	"encoding/json"
	"slices"
)

// CurrentVersion is the schema version this build reads and writes.
const CurrentVersion = 2

// versionUnrecognized marks an on-disk version that is not a non-negative
// integral JSON number.
const versionUnrecognized = -1

// Action types known to the admin process. Other strings are allowed.
const (
	ActionBan       = "ban"
	ActionWarn      = "warn"
	ActionWhitelist = "whitelist"
)

// Document is the root persisted object.
type Document struct {
	Version   int
	Players   []Player
	Actions   []Action
	PendingWL []PendingWL
}

// NewDocument returns an empty document at [CurrentVersion].
func NewDocument() *Document {
	return &Document{
		Version:   CurrentVersion,
		Players:   []Player{},
		Actions:   []Action{},
		PendingWL: []PendingWL{},
	}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	out := &Document{
		Version:   d.Version,
		Players:   make([]Player, len(d.Players)),
		Actions:   make([]Action, len(d.Actions)),
		PendingWL: make([]PendingWL, len(d.PendingWL)),
	}

	for i, p := range d.Players {
		if p.Notes != nil {
			notes := *p.Notes
			p.Notes = &notes
		}

		p.Extra = p.Extra.clone()
		out.Players[i] = p
	}

	for i, a := range d.Actions {
		a.Identifiers = slices.Clone(a.Identifiers)
		a.Extra = a.Extra.clone()
		out.Actions[i] = a
	}

	for i, w := range d.PendingWL {
		w.Extra = w.Extra.clone()
		out.PendingWL[i] = w
	}

	return out
}

// ActionIDs returns the set of action IDs currently in the document.
func (d *Document) ActionIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(d.Actions))
	for _, a := range d.Actions {
		ids[a.ID] = struct{}{}
	}

	return ids
}

// Player is one known player.
type Player struct {
	License          string       `json:"license"`
	Name             string       `json:"name"`
	PlayTime         int64        `json:"playTime"`
	TsJoined         int64        `json:"tsJoined"`
	TsLastConnection int64        `json:"tsLastConnection"`
	Notes            *PlayerNotes `json:"notes,omitempty"`

	// Extra holds keys this package does not model, preserved verbatim.
	Extra Extra `json:"-"`
}

// PlayerNotes is the free-text admin note attached to a player.
type PlayerNotes struct {
	Text       string `json:"text"`
	LastAdmin  string `json:"lastAdmin"`
	TsLastEdit int64  `json:"tsLastEdit"`
}

var playerKeys = []string{"license", "name", "playTime", "tsJoined", "tsLastConnection", "notes"}

func (p *Player) UnmarshalJSON(data []byte) error {
	type plain Player

	var v plain
	if err := decodeRecord(data, &v, &v.Extra, playerKeys); err != nil {
		return err
	}

	*p = Player(v)

	return nil
}

func (p Player) MarshalJSON() ([]byte, error) {
	type plain Player

	return encodeRecord(plain(p), p.Extra, playerKeys)
}

// Action is a ban, warn, whitelist approval or any other admin action.
// Action-specific keys such as expiration, revocation or playerName are kept
// in Extra. Modeled keys are always written, and Identifiers is never nil
// after decoding.
type Action struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Author      string   `json:"author"`
	Reason      string   `json:"reason"`
	Timestamp   int64    `json:"timestamp"`
	Identifiers []string `json:"identifiers"`

	Extra Extra `json:"-"`
}

var actionKeys = []string{"id", "type", "author", "reason", "timestamp", "identifiers"}

func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action

	var v plain
	if err := decodeRecord(data, &v, &v.Extra, actionKeys); err != nil {
		return err
	}

	v.Identifiers = nonNil(v.Identifiers)
	*a = Action(v)

	return nil
}

func (a Action) MarshalJSON() ([]byte, error) {
	type plain Action

	a.Identifiers = nonNil(a.Identifiers)

	return encodeRecord(plain(a), a.Extra, actionKeys)
}

// PendingWL is a player waiting for whitelist approval.
type PendingWL struct {
	ID            string `json:"id"`
	License       string `json:"license"`
	Name          string `json:"name"`
	TsLastAttempt int64  `json:"tsLastAttempt"`

	Extra Extra `json:"-"`
}

var pendingWLKeys = []string{"id", "license", "name", "tsLastAttempt"}

func (w *PendingWL) UnmarshalJSON(data []byte) error {
	type plain PendingWL

	var v plain
	if err := decodeRecord(data, &v, &v.Extra, pendingWLKeys); err != nil {
		return err
	}

	*w = PendingWL(v)

	return nil
}

func (w PendingWL) MarshalJSON() ([]byte, error) {
	type plain PendingWL

	return encodeRecord(plain(w), w.Extra, pendingWLKeys)
}

// Extra holds unmodeled record keys as raw JSON values.
type Extra map[string]json.RawMessage

func (e Extra) clone() Extra {
	if e == nil {
		return nil
	}

	out := make(Extra, len(e))
	for k, v := range e {
		out[k] = append(json.RawMessage(nil), v...)
	}

	return out
}
