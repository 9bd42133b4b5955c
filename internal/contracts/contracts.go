package contracts

import "time"

// ChangeEvent is published by todo-api after a mutation and its changelog
// entry have committed. Subscribers use it as a hint to pull the changelist.
type ChangeEvent struct {
	EventID      string    `json:"event_id"`
	EntryID      string    `json:"entry_id"`
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	Operation    string    `json:"operation"`
	Version      int64     `json:"version"`
	IsDeleted    bool      `json:"is_deleted"`
	OccurredAt   time.Time `json:"occurred_at"`
	ShardID      int       `json:"shard_id"`
}

const (
	OperationCreated = "created"
	OperationUpdated = "updated"
	OperationDeleted = "deleted"
)
