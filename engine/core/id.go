package core

import (
	"errors"
	"fmt"

	"github.com/segmentio/ksuid"
)

// ID identifies envelopes, sessions and other short-lived records.
// IDs are KSUIDs: sortable by creation time and unique within the process.
type ID string

func (c ID) String() string {
	return string(c)
}

func (c ID) IsZero() bool {
	return c == ""
}

func NewID() (ID, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return ID(id.String()), nil
}

func MustNewID() ID {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}

// ParseID validates s as a KSUID.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", errors.New("empty ID")
	}
	parsed, err := ksuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID format: %w", err)
	}
	return ID(parsed.String()), nil
}
