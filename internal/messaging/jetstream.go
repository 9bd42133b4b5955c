package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/todo-1m/todosync/internal/contracts"
	"github.com/todo-1m/todosync/internal/sharding"
)

const (
	ChangesStream = "TODO_CHANGES"
	changesMaxAge = 7 * 24 * time.Hour
)

// EnsureStreams creates (or validates) the change notification stream
// covering app.event.>.
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(ChangesStream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if _, addErr := js.AddStream(&nats.StreamConfig{
			Name:      ChangesStream,
			Subjects:  []string{sharding.AllEvents},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			MaxAge:    changesMaxAge,
			Replicas:  1,
		}); addErr != nil {
			return addErr
		}
	}
	return nil
}

// DecodeChangeEvent parses a notification payload.
func DecodeChangeEvent(data []byte) (contracts.ChangeEvent, error) {
	var event contracts.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return contracts.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if event.ResourceID == "" {
		return contracts.ChangeEvent{}, errors.New("decode change event: missing resource_id")
	}
	return event, nil
}
