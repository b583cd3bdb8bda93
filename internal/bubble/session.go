package bubble

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/logging"
)

// Session commands. They are applied by the session goroutine between frames.
type (
	SetHover struct {
		ID    string
		Reply chan<- error // optional
	}
	Resize struct {
		Width, Height float64
	}
	SetVisible struct {
		Visible bool
	}
	ReplaceItems struct {
		Items []Item
	}
	SnapshotRequest struct {
		Reply chan<- Snapshot
	}
)

// Frame is what subscribers receive. Snapshot is shared between subscribers
// and must be treated as read-only.
type Frame struct {
	Snapshot Snapshot
	Reset    bool // first frame after the dataset was replaced
}

// SessionOptions tunes the frame loop of a session.
type SessionOptions struct {
	FrameInterval  time.Duration
	BroadcastEvery int // publish every Nth frame
	// OnFrame sees every published frame before subscribers do. It is not a
	// subscriber and does not count as a viewer.
	OnFrame func(Frame)
}

// Session owns one Field and steps it on a frame loop. All mutation goes
// through Inbox so the Field is only ever touched by the Run goroutine.
type Session struct {
	Token string
	Inbox chan any

	field          *Field
	frameInterval  time.Duration
	broadcastEvery uint64
	pendingReset   bool
	onFrame        func(Frame)

	subMu   sync.Mutex
	subs    map[int]func(Frame)
	nextSub int

	statusMu sync.RWMutex
	status   SessionStatus

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	log      *zap.Logger
}

// NewSession creates a session around an initialized field. Call Run to start it.
func NewSession(token string, field *Field, opts SessionOptions) *Session {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = time.Second / DefaultFrameHz
	}
	if opts.BroadcastEvery <= 0 {
		opts.BroadcastEvery = 1
	}
	return &Session{
		Token:          token,
		Inbox:          make(chan any, 64),
		field:          field,
		frameInterval:  opts.FrameInterval,
		broadcastEvery: uint64(opts.BroadcastEvery),
		onFrame:        opts.OnFrame,
		subs:           make(map[int]func(Frame)),
		status:         StatusRunning,
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		log:            logging.Named("session").With(zap.String("session", token)),
	}
}

// Run processes commands and frames until Stop is called or ctx ends.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.setStatus(StatusClosed)
	defer func() {
		a := s.field.Activity()
		s.log.Info("session stopped",
			zap.Uint64("ticks", s.field.Tick()),
			zap.Uint64("wall_contacts", a.Wall),
			zap.Uint64("body_contacts", a.Body),
			zap.Uint64("repel_contacts", a.Repel))
	}()

	frames := make(chan struct{}, 1)
	request := func() {
		select {
		case frames <- struct{}{}:
		default:
		}
	}

	loop := StartLoop(ctx, s.frameInterval, request)
	defer func() {
		if loop != nil {
			loop.Cancel()
		}
	}()

	s.log.Debug("session started", zap.Int("bodies", s.field.Len()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case cmd := <-s.Inbox:
			switch c := cmd.(type) {
			case SetVisible:
				if c.Visible && loop == nil {
					loop = StartLoop(ctx, s.frameInterval, request)
					s.setStatus(StatusRunning)
				} else if !c.Visible && loop != nil {
					loop.Cancel()
					loop = nil
					s.setStatus(StatusPaused)
					// drop a frame requested before the cancel
					select {
					case <-frames:
					default:
					}
				}
			default:
				s.handleCommand(cmd)
			}
		case <-frames:
			s.field.Step()
			if s.pendingReset || s.field.Tick()%s.broadcastEvery == 0 {
				s.publish()
			}
		}
	}
}

func (s *Session) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case SetHover:
		var err error
		if !s.field.SetHovered(c.ID) {
			err = ErrUnknownBody
		}
		if c.Reply != nil {
			c.Reply <- err
		}
	case Resize:
		s.field.Resize(c.Width, c.Height)
	case ReplaceItems:
		s.field.Reset(c.Items)
		s.pendingReset = true
		s.log.Info("dataset replaced", zap.Int("bodies", s.field.Len()))
	case SnapshotRequest:
		c.Reply <- s.field.Snapshot()
	default:
		s.log.Warn("unknown session command", zap.Any("command", cmd))
	}
}

func (s *Session) publish() {
	frame := Frame{Snapshot: s.field.Snapshot(), Reset: s.pendingReset}
	s.pendingReset = false

	if s.onFrame != nil {
		s.onFrame(frame)
	}

	s.subMu.Lock()
	subs := make([]func(Frame), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(frame)
	}
}

// Subscribe registers fn for published frames. fn runs on the session
// goroutine and must not block.
func (s *Session) Subscribe(fn func(Frame)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Subscribers returns the number of registered subscribers, i.e. viewers.
func (s *Session) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

// Send queues a command for the session goroutine.
func (s *Session) Send(ctx context.Context, cmd any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.Inbox <- cmd:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hover flags id as hovered ("" clears) and waits until the session applied it.
func (s *Session) Hover(ctx context.Context, id string) error {
	reply := make(chan error, 1)
	if err := s.Send(ctx, SetHover{ID: id, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot asks the session goroutine for a copy of the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := s.Send(ctx, SnapshotRequest{Reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.done:
		return Snapshot{}, ErrSessionClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Stop terminates the session. Safe to call more than once.
func (s *Session) Stop() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Status() SessionStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Session) setStatus(st SessionStatus) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}
