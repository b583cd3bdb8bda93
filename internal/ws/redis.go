package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/logging"
)

var rdbClient *redis.Client

// SetRedisClient sets the client the event subscriber listens with.
func SetRedisClient(r *redis.Client) {
	rdbClient = r
}

// CatalogLoader fetches the current dataset, typically from the database.
type CatalogLoader func(ctx context.Context) ([]bubble.Item, error)

// StartEventSubscriber listens on bubble_events and applies events published
// by other instances. Blocks until ctx ends.
func StartEventSubscriber(ctx context.Context, load CatalogLoader) error {
	log := logging.Named("ws")
	if rdbClient == nil {
		log.Info("redis client not set; event subscriber not started")
		return nil
	}

	pubsub := rdbClient.Subscribe(ctx, bubble.EventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", bubble.EventsChannel, err)
	}
	log.Info("event subscriber started", zap.String("channel", bubble.EventsChannel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev bubble.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn("invalid event payload", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			handleEvent(ctx, bubble.Sessions, ev, load)
		}
	}
}

// handleEvent applies one cross-instance event to the local manager. Events
// this instance published itself were already applied when they were sent.
func handleEvent(ctx context.Context, m *bubble.Manager, ev bubble.Event, load CatalogLoader) {
	if m == nil || ev.Origin == m.InstanceID {
		return
	}
	log := logging.Named("ws")

	switch ev.Type {
	case bubble.EventCatalogUpdated:
		if load == nil {
			return
		}
		items, err := load(ctx)
		if err != nil {
			log.Error("failed to reload catalog", zap.String("origin", ev.Origin), zap.Error(err))
			return
		}
		reset := m.ReplaceItems(ctx, items)
		log.Info("catalog reloaded from remote update", zap.Int("sessions_reset", reset))

	case bubble.EventSessionClosed:
		if ev.Token == "" {
			return
		}
		// only the owning instance has the session; everyone else ignores it
		if err := m.CloseSession(ev.Token); err == nil {
			log.Info("closed session on remote request", zap.String("session", ev.Token))
		}

	default:
		log.Debug("unknown event type", zap.String("type", ev.Type))
	}
}
