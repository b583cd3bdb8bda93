package bubble

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/config"
	"github.com/bubblefield/backend/internal/logging"
)

// Redis keys.
const (
	idleSetKey = "session_idle"
)

func snapshotKey(token string) string {
	return "session:" + token + ":snapshot"
}

// Manager owns every live session on this instance and the dataset new
// sessions are created from.
type Manager struct {
	sessions   map[string]*Session
	lastActive map[string]time.Time
	items      []Item
	rdb        *redis.Client
	config     config.Config // guarded by mu; replaced whole by SetConfig
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	log        *zap.Logger

	// InstanceID tags events this instance publishes.
	InstanceID string
	// NewRandom seeds the field of every new session.
	NewRandom func() RandomSource
}

var (
	// Global session manager instance
	Sessions *Manager
)

// InitializeManager initializes the global session manager.
func InitializeManager(rdb *redis.Client, cfg *config.Config) *Manager {
	Sessions = NewManager(context.Background(), rdb, cfg)
	return Sessions
}

// NewManager creates a manager holding a copy of cfg. rdb may be nil, in which
// case snapshots are not cached and idle tracking is kept in memory only.
func NewManager(ctx context.Context, rdb *redis.Client, cfg *config.Config) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	var settings config.Config
	if cfg != nil {
		settings = *cfg
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		lastActive: make(map[string]time.Time),
		rdb:        rdb,
		config:     settings,
		ctx:        ctx,
		cancel:     cancel,
		log:        logging.Named("sessions"),
		InstanceID: uuid.NewString(),
		NewRandom: func() RandomSource {
			return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
		},
	}
}

// Config returns a copy of the settings new sessions are created with.
func (m *Manager) Config() config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig replaces the settings. Live sessions keep their frame rate;
// sessions created afterwards, idle checks and snapshot caching use cfg.
func (m *Manager) SetConfig(cfg config.Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// Items returns a copy of the current dataset.
func (m *Manager) Items() []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneItems(m.items)
}

// ReplaceItems swaps the dataset and resets every live session with it.
// Returns how many sessions were reset.
func (m *Manager) ReplaceItems(ctx context.Context, items []Item) int {
	m.mu.Lock()
	m.items = cloneItems(items)
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	reset := 0
	for _, s := range live {
		// each session gets its own copy; fields never share payload memory
		if err := s.Send(ctx, ReplaceItems{Items: cloneItems(items)}); err != nil {
			m.log.Warn("failed to reset session", zap.String("session", s.Token), zap.Error(err))
			continue
		}
		reset++
	}
	m.log.Info("dataset replaced", zap.Int("items", len(items)), zap.Int("sessions_reset", reset))
	return reset
}

// CreateSession starts a new simulation for an arena of the given size. A zero
// dimension falls back to the configured default arena.
func (m *Manager) CreateSession(width, height float64) (*Session, error) {
	if width < 0 || height < 0 {
		return nil, ErrInvalidArenaSize
	}

	m.mu.Lock()
	if width == 0 {
		width = float64(m.config.DefaultArenaWidth)
	}
	if height == 0 {
		height = float64(m.config.DefaultArenaHeight)
	}
	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}

	token := uuid.NewString()
	field := NewField(cloneItems(m.items), width, height, m.NewRandom())
	opts := sessionOptions(m.config)
	if m.rdb != nil {
		opts.OnFrame = throttleFrames(framesPerSecond(m.config), func(snap Snapshot) {
			go m.saveSnapshotToRedis(token, snap)
		})
	}
	s := NewSession(token, field, opts)
	m.sessions[token] = s
	m.lastActive[token] = time.Now()
	m.mu.Unlock()

	go s.Run(m.ctx)
	m.Touch(token)

	m.log.Info("session created",
		zap.String("session", token),
		zap.Int("bodies", field.Len()),
		zap.Float64("width", width),
		zap.Float64("height", height))
	return s, nil
}

func sessionOptions(cfg config.Config) SessionOptions {
	hz := cfg.FrameRateHz
	if hz <= 0 {
		hz = DefaultFrameHz
	}
	return SessionOptions{
		FrameInterval:  time.Second / time.Duration(hz),
		BroadcastEvery: cfg.BroadcastEveryFrames,
	}
}

// GetSession returns the live session for token.
func (m *Manager) GetSession(token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// CloseSession stops a session and forgets it.
func (m *Manager) CloseSession(token string) error {
	m.mu.Lock()
	s, ok := m.sessions[token]
	if ok {
		delete(m.sessions, token)
		delete(m.lastActive, token)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Stop()

	if m.rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.rdb.ZRem(ctx, idleSetKey, token)
		m.rdb.Del(ctx, snapshotKey(token))
	}
	m.log.Info("session closed", zap.String("session", token))
	return nil
}

// Touch marks a session as active, pushing its idle deadline forward.
func (m *Manager) Touch(token string) {
	now := time.Now()
	m.mu.Lock()
	_, ok := m.sessions[token]
	if ok {
		m.lastActive[token] = now
	}
	idle := time.Duration(m.config.SessionIdleSeconds) * time.Second
	m.mu.Unlock()

	if m.rdb == nil || !ok {
		return
	}
	deadline := now.Add(idle).Unix()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.rdb.ZAdd(ctx, idleSetKey, redis.Z{Score: float64(deadline), Member: token}).Err(); err != nil {
		m.log.Warn("failed to schedule idle deadline", zap.String("session", token), zap.Error(err))
	}
}

// ReapIdle closes sessions whose last activity is older than the idle timeout.
// A session somebody is still watching is not idle; its activity is bumped to
// now instead.
func (m *Manager) ReapIdle(now time.Time) []string {
	m.mu.Lock()
	timeout := time.Duration(m.config.SessionIdleSeconds) * time.Second
	var expired []string
	for token, last := range m.lastActive {
		if now.Sub(last) < timeout {
			continue
		}
		if s, ok := m.sessions[token]; ok && s.Subscribers() > 0 {
			m.lastActive[token] = now
			continue
		}
		expired = append(expired, token)
	}
	m.mu.Unlock()

	for _, token := range expired {
		_ = m.CloseSession(token)
	}
	return expired
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops every session and waits for them to exit.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for token, s := range m.sessions {
		live = append(live, s)
		delete(m.sessions, token)
		delete(m.lastActive, token)
	}
	m.mu.Unlock()

	for _, s := range live {
		<-s.Done()
	}
}

// framesPerSecond is how many published frames cover one second of
// simulation, rounded up.
func framesPerSecond(cfg config.Config) int {
	hz := cfg.FrameRateHz
	if hz <= 0 {
		hz = DefaultFrameHz
	}
	every := cfg.BroadcastEveryFrames
	if every <= 0 {
		every = 1
	}
	return max(1, (hz+every-1)/every)
}

// throttleFrames passes the first published frame, every nth one after it and
// every reset frame to save. The returned func runs on the session goroutine.
func throttleFrames(n int, save func(Snapshot)) func(Frame) {
	left := 0
	return func(f Frame) {
		if f.Reset || left == 0 {
			save(f.Snapshot)
			left = n
		}
		left--
	}
}

func (m *Manager) saveSnapshotToRedis(token string, snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		m.log.Error("failed to marshal snapshot", zap.String("session", token), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 2*time.Second)
	defer cancel()
	ttl := time.Duration(m.Config().SnapshotTTLSeconds) * time.Second
	if err := m.rdb.SetEx(ctx, snapshotKey(token), data, ttl).Err(); err != nil {
		m.log.Debug("failed to cache snapshot", zap.String("session", token), zap.Error(err))
	}
}

// CachedSnapshot reads the last snapshot cached for token, possibly by another
// instance.
func (m *Manager) CachedSnapshot(ctx context.Context, token string) (Snapshot, error) {
	if m.rdb == nil {
		return Snapshot{}, ErrSessionNotFound
	}
	data, err := m.rdb.Get(ctx, snapshotKey(token)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, ErrSessionNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read cached snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return snap, nil
}

// PublishEvent publishes ev tagged with this instance's id.
func (m *Manager) PublishEvent(ctx context.Context, ev Event) error {
	ev.Origin = m.InstanceID
	return PublishEvent(ctx, m.rdb, ev)
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
