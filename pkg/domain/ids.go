package domain

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "backpack/pkg/domain-errors"
)

// maxPrincipalLength bounds principal text accepted at trust boundaries.
const maxPrincipalLength = 256

// BackpackID identifies a backpack. Identifiers are assigned monotonically
// starting at 1; zero is never a valid identifier.
type BackpackID uint64

// ParseBackpackID parses a base-10, non-zero backpack identifier.
func ParseBackpackID(s string) (BackpackID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "backpack id is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid backpack id format")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "backpack id must be non-zero")
	}
	return BackpackID(v), nil
}

func (id BackpackID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IsNil reports whether the identifier is the zero value.
func (id BackpackID) IsNil() bool {
	return id == 0
}

// Principal is an opaque caller address. It carries no personal data; the
// ledger only ever compares principals for equality.
type Principal string

// ParsePrincipal trims surrounding whitespace and rejects empty, oversized,
// non-UTF8 or control-character input.
func ParsePrincipal(s string) (Principal, error) {
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal must be valid UTF-8")
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal is required")
	}
	if len(trimmed) > maxPrincipalLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal is too long")
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "principal contains invalid characters")
		}
	}
	return Principal(trimmed), nil
}

func (p Principal) String() string {
	return string(p)
}

// IsNil reports whether the principal is empty.
func (p Principal) IsNil() bool {
	return p == ""
}

// EventID identifies an emitted ledger event.
type EventID uuid.UUID

// NewEventID returns a fresh random event identifier.
func NewEventID() EventID {
	return EventID(uuid.New())
}

// ParseEventID parses a non-nil UUID event identifier.
func ParseEventID(s string) (EventID, error) {
	if s == "" {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "event id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid event id format")
	}
	if parsed == uuid.Nil {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "event id cannot be nil")
	}
	return EventID(parsed), nil
}

func (id EventID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the event id is the nil UUID.
func (id EventID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText encodes the event id in canonical UUID form.
func (id EventID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText decodes a canonical UUID.
func (id *EventID) UnmarshalText(data []byte) error {
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
