package todos

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh todo id.
func NewID() string {
	return uuid.NewString()
}

// ParseID returns the canonical form of a caller supplied id.
func ParseID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrMalformedID
	}
	return id.String(), nil
}

func parseIDs(raw []string) ([]string, error) {
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		id, err := ParseID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
