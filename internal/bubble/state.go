package bubble

import "errors"

// SessionStatus represents the lifecycle state of a live session.
type SessionStatus string

const (
	StatusRunning SessionStatus = "RUNNING"
	StatusPaused  SessionStatus = "PAUSED" // view hidden; no frames requested
	StatusClosed  SessionStatus = "CLOSED"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session closed")
	ErrTooManySessions  = errors.New("too many live sessions")
	ErrUnknownBody      = errors.New("unknown body id")
	ErrInvalidArenaSize = errors.New("arena size must be non-negative")
)
