package session

import (
	"fmt"
	"time"

	"presence/internal/location"
	"presence/internal/photo"
)

// Kind is the presence event type.
type Kind string

const (
	KindLogin  Kind = "LOGIN"
	KindLogout Kind = "LOGOUT"
)

// ParseKind maps a request value like "login" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "login", "LOGIN":
		return KindLogin, nil
	case "logout", "LOGOUT":
		return KindLogout, nil
	}
	return "", fmt.Errorf("unknown presence kind %q", s)
}

// State of a capture session. Sessions move strictly forward through the
// pipeline states; Failed is reachable from any non-terminal state.
type State string

const (
	StateIdle            State = "idle"
	StateArmed           State = "armed"
	StateCapturing       State = "capturing"
	StateEncoding        State = "encoding"
	StateLocationPending State = "location_pending"
	StateSubmitting      State = "submitting"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

var stateOrder = map[State]int{
	StateIdle:            0,
	StateArmed:           1,
	StateCapturing:       2,
	StateEncoding:        3,
	StateLocationPending: 4,
	StateSubmitting:      5,
	StateCompleted:       6,
}

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Stage names the pipeline component an error originated from.
type Stage string

const (
	StagePermission Stage = "permission"
	StageCamera     Stage = "camera"
	StageEncode     Stage = "encode"
	StageLocation   Stage = "location"
	StageSubmit     Stage = "submit"
	StageMarker     Stage = "marker"
)

// StageError wraps a component error with its originating stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Session is the single in-flight attempt for one presence event. It is owned
// exclusively by the Runner; photo and fix are produced once and never reused
// by a later session.
type Session struct {
	ID         string
	Identity   string
	Kind       Kind
	StartedAt  time.Time
	State      State
	RetryCount int // location timeout retries observed
	Photo      *photo.Encoded
	Fix        *location.Fix
	LastError  error
}

// advance moves the session forward. Backward or sideways moves are refused,
// keeping the transition history monotonic.
func (s *Session) advance(next State) {
	if s.State.Terminal() {
		return
	}
	if stateOrder[next] <= stateOrder[s.State] {
		return
	}
	s.State = next
}

// fail moves the session to its terminal failure state, recording the
// originating stage.
func (s *Session) fail(stage Stage, err error) *StageError {
	werr := &StageError{Stage: stage, Err: err}
	if !s.State.Terminal() {
		s.State = StateFailed
		s.LastError = werr
	}
	return werr
}
