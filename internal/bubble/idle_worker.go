package bubble

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/config"
	"github.com/bubblefield/backend/internal/logging"
)

// StartIdleWorker closes sessions nobody has touched for SessionIdleSeconds.
// With Redis the deadlines live in the session_idle sorted set; without it the
// manager's in-memory activity map is swept instead. Blocks until ctx ends.
func StartIdleWorker(ctx context.Context, m *Manager, rdb *redis.Client, cfg *config.Config) {
	log := logging.Named("idle")
	if m == nil || cfg == nil {
		log.Warn("manager or config missing; idle worker not started")
		return
	}

	interval := time.Duration(cfg.IdlePollIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	log.Info("idle worker started", zap.Duration("interval", interval), zap.Bool("redis", rdb != nil))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("idle worker stopping")
			return
		case <-ticker.C:
			if rdb == nil {
				for _, token := range m.ReapIdle(time.Now()) {
					log.Info("closed idle session", zap.String("session", token))
				}
				continue
			}
			reapFromRedis(ctx, m, rdb, log)
		}
	}
}

func reapFromRedis(ctx context.Context, m *Manager, rdb *redis.Client, log *zap.Logger) {
	now := time.Now().Unix()
	members, err := rdb.ZRangeByScore(ctx, idleSetKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now)}).Result()
	if err != nil {
		log.Warn("failed to fetch idle sessions", zap.Error(err))
		return
	}

	for _, token := range members {
		// another instance may own or have reaped it already
		s, err := m.GetSession(token)
		if err != nil {
			continue
		}
		if s.Subscribers() > 0 {
			m.Touch(token)
			continue
		}
		if removed, _ := rdb.ZRem(ctx, idleSetKey, token).Result(); removed == 0 {
			continue
		}
		if err := m.CloseSession(token); err != nil {
			continue
		}
		ev := Event{Type: EventSessionClosed, Token: token, Message: "session closed after inactivity"}
		if err := m.PublishEvent(ctx, ev); err != nil {
			log.Warn("publish session_closed failed", zap.String("session", token), zap.Error(err))
		} else {
			log.Info("closed idle session", zap.String("session", token))
		}
	}
}
