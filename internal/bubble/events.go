package bubble

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the Redis pub/sub channel shared by every instance.
const EventsChannel = "bubble_events"

// Event types published on EventsChannel.
const (
	EventCatalogUpdated = "catalog_updated"
	EventSessionClosed  = "session_closed"
)

// Event is the JSON payload published on EventsChannel.
type Event struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	Origin  string `json:"origin,omitempty"` // instance that published it
	Message string `json:"message,omitempty"`
}

// PublishEvent marshals ev and publishes it. A nil client is a no-op.
func PublishEvent(ctx context.Context, rdb *redis.Client, ev Event) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, EventsChannel, b).Err()
}
