package playersdb

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const (
	actionIDMaxAttempts = 10000
	actionIDCodeLength  = 7
	crockfordBase       = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

// actionIDNamespace seeds name-based UUIDs for action IDs. Changing it
// changes every generated ID.
var actionIDNamespace = uuid.MustParse("6f1d2b1e-8c3a-5e1f-9a57-2f4a1c9d0b63")

// GenerateActionID returns an ID such as "BK3F-9Q2M" that is not in existing.
//
// The result is deterministic for a given action type and existing set: the
// candidate for attempt n is derived from a SHA-1 name-based UUID of
// "<type>:<len(existing)>:<n>", and the first candidate not in existing wins.
// The prefix letter is the upper-cased first letter of actionType ("X" when
// it does not start with an ASCII letter).
func GenerateActionID(existing map[string]struct{}, actionType string) (string, error) {
	prefix := actionIDPrefix(actionType)
	seed := actionType + ":" + strconv.Itoa(len(existing)) + ":"

	for attempt := range actionIDMaxAttempts {
		id := uuid.NewSHA1(actionIDNamespace, []byte(seed+strconv.Itoa(attempt)))
		code := encodeActionCode(id)
		candidate := prefix + code[:3] + "-" + code[3:]

		if _, taken := existing[candidate]; !taken {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: type %q", ErrIDGeneration, actionType)
}

func actionIDPrefix(actionType string) string {
	if actionType == "" {
		return "X"
	}

	c := actionType[0]

	switch {
	case c >= 'a' && c <= 'z':
		return string(c - 'a' + 'A')
	case c >= 'A' && c <= 'Z':
		return string(c)
	default:
		return "X"
	}
}

// encodeActionCode renders the first 35 hash bits of id in Crockford base32.
// Bytes 0-4 of a name-based UUID carry no version or variant bits.
func encodeActionCode(id uuid.UUID) string {
	value := uint64(id[0])<<32 | uint64(id[1])<<24 | uint64(id[2])<<16 | uint64(id[3])<<8 | uint64(id[4])

	var buf [actionIDCodeLength]byte
	for i := actionIDCodeLength - 1; i >= 0; i-- {
		buf[i] = crockfordBase[value&0x1f]
		value >>= 5
	}

	return string(buf[:])
}
