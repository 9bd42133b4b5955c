package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of notification partitions.
const ShardCount = 1024

const (
	EventSubjectPrefix = "app.event"
	// AllEvents matches every change notification subject.
	AllEvents = EventSubjectPrefix + ".>"
)

// GetShardID calculates the deterministic shard ID for a given entity ID.
func GetShardID(entityID string) int {
	checksum := crc32.ChecksumIEEE([]byte(entityID))
	return int(checksum % ShardCount)
}

// GetSubject returns the change notification subject for an entity.
// Format: app.event.{shard_id}.{entity_type}.{entity_id}
func GetSubject(entityType, entityID string) string {
	return fmt.Sprintf("%s.%d.%s.%s", EventSubjectPrefix, GetShardID(entityID), entityType, entityID)
}

// ShardSubject matches every entity of entityType that lands on shardID.
func ShardSubject(shardID int, entityType string) string {
	return fmt.Sprintf("%s.%d.%s.*", EventSubjectPrefix, shardID, entityType)
}
