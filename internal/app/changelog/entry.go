package changelog

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ResourceTypeTodo tags entries that describe todo mutations.
const ResourceTypeTodo = "todo"

// NoWatermark asks for the full history. Versions start at 0, so the
// watermark that precedes every entry is -1.
const NoWatermark int64 = -1

var (
	ErrNoEntries        = errors.New("changelog is empty")
	ErrInvalidWatermark = errors.New("lastSyncedVersion must be an integer")
	ErrDuplicateVersion = errors.New("changelog version already used")
	ErrStorage          = errors.New("storage failure")
)

// Entry is one immutable mutation record in the changelog.
type Entry struct {
	ID           string    `json:"id"`
	ResourceID   string    `json:"resourceId"`
	ResourceType string    `json:"resourceType"`
	Version      int64     `json:"version"`
	IsDeleted    bool      `json:"isDeleted"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Resource is anything the coordinator can record a mutation for.
type Resource interface {
	ResourceID() string
	ResourceType() string
}

// ParseWatermark turns the lastSyncedVersion query value into a watermark.
// An empty value means the caller has never synced.
func ParseWatermark(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NoWatermark, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidWatermark
	}
	if v < NoWatermark {
		return NoWatermark, nil
	}
	return v, nil
}
