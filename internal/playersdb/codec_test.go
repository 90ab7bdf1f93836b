package playersdb

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()

	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestEncode_Golden(t *testing.T) {
	t.Parallel()

	g := newGoldie(t)

	compact, err := Encode(sampleDocument(), false)
	require.NoError(t, err)
	g.Assert(t, "document_compact", compact)

	pretty, err := Encode(sampleDocument(), true)
	require.NoError(t, err)
	g.Assert(t, "document_pretty", pretty)

	empty, err := Encode(&Document{Version: CurrentVersion}, false)
	require.NoError(t, err)
	g.Assert(t, "document_empty", empty)
}

func TestDecode_RoundTripsEncode(t *testing.T) {
	t.Parallel()

	for _, pretty := range []bool{false, true} {
		data, err := Encode(sampleDocument(), pretty)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)

		if diff := cmp.Diff(sampleDocument(), got); diff != "" {
			t.Fatalf("pretty=%v round trip mismatch (-want +got):\n%s", pretty, diff)
		}
	}
}

func TestDecode_AppliesDefaultsForMissingKeys(t *testing.T) {
	t.Parallel()

	doc, err := Decode([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, NewDocument(), doc)

	doc, err = Decode([]byte(`{"version":1,"actions":[{"id":"A1","type":"warn"}]}`))
	require.NoError(t, err)

	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, []Player{}, doc.Players)
	assert.Equal(t, []PendingWL{}, doc.PendingWL)
	assert.Equal(t, []Action{{ID: "A1", Type: "warn", Identifiers: []string{}}}, doc.Actions)
}

func TestDecode_Version(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "integer", raw: `{"version":1}`, want: 1},
		{name: "zero", raw: `{"version":0}`, want: 0},
		{name: "newer", raw: `{"version":7}`, want: 7},
		{name: "missing", raw: `{"players":[]}`, want: CurrentVersion},
		{name: "string", raw: `{"version":"2"}`, want: versionUnrecognized},
		{name: "integral float", raw: `{"version":2.0}`, want: 2},
		{name: "exponent", raw: `{"version":2e0}`, want: 2},
		{name: "large exponent", raw: `{"version":1E1}`, want: 10},
		{name: "negative zero", raw: `{"version":-0}`, want: 0},
		{name: "overflows int", raw: `{"version":99999999999999999999}`, want: math.MaxInt},
		{name: "huge exponent", raw: `{"version":1e400}`, want: math.MaxInt},
		{name: "float", raw: `{"version":1.5}`, want: versionUnrecognized},
		{name: "negative float", raw: `{"version":-2.0}`, want: versionUnrecognized},
		{name: "null", raw: `{"version":null}`, want: versionUnrecognized},
		{name: "negative", raw: `{"version":-3}`, want: versionUnrecognized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doc, err := Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, doc.Version)
		})
	}
}

func TestDecode_RejectsCorruptDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "whitespace", raw: " \n"},
		{name: "array root", raw: `[]`},
		{name: "null root", raw: `null`},
		{name: "truncated", raw: `{"version":2,"players":[`},
		{name: "players not array", raw: `{"players":{}}`},
		{name: "action not object", raw: `{"actions":["A1"]}`},
		{name: "wrong field type", raw: `{"players":[{"license":5}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode([]byte(tc.raw))
			require.Error(t, err)
		})
	}
}

func TestAction_PreservesUnknownKeys(t *testing.T) {
	t.Parallel()

	raw := `{"id":"W1","type":"warn","revocation":{"timestamp":null,"author":null},"playerName":false}`

	var a Action
	require.NoError(t, json.Unmarshal([]byte(raw), &a))

	assert.Equal(t, "W1", a.ID)
	assert.Equal(t, "warn", a.Type)
	assert.Len(t, a.Extra, 2)
	assert.JSONEq(t, `{"timestamp":null,"author":null}`, string(a.Extra["revocation"]))

	out, err := json.Marshal(a)
	require.NoError(t, err)

	assert.Equal(t, `{"id":"W1","type":"warn","author":"","reason":"","timestamp":0,"identifiers":[],"playerName":false,"revocation":{"timestamp":null,"author":null}}`, string(out))
}

func TestEncodeRecord_DropsExtraKeysThatShadowModeledFields(t *testing.T) {
	t.Parallel()

	p := Player{License: "l", Name: "n", Extra: Extra{"name": json.RawMessage(`"shadow"`), "z": json.RawMessage(`1`)}}

	out, err := json.Marshal(p)
	require.NoError(t, err)

	assert.Equal(t, `{"license":"l","name":"n","playTime":0,"tsJoined":0,"tsLastConnection":0,"z":1}`, string(out))
}

func TestDocument_CloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := sampleDocument()
	clone := orig.Clone()

	clone.Players[0].Notes.Text = "changed"
	clone.Actions[0].Identifiers[0] = "changed"
	clone.Actions[0].Extra["expiration"][0] = 'X'
	clone.PendingWL = append(clone.PendingWL, PendingWL{ID: "new"})

	if diff := cmp.Diff(sampleDocument(), orig); diff != "" {
		t.Fatalf("clone mutation leaked into original (-want +got):\n%s", diff)
	}

	empty := &Document{Actions: []Action{{ID: "A1", Identifiers: []string{}}}}
	assert.NotNil(t, empty.Clone().Actions[0].Identifiers)
}
