package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"presence/internal/camera"
	"presence/internal/location"
	"presence/internal/marker"
	"presence/internal/permission"
	"presence/internal/photo"
	"presence/internal/submit"
)

// ErrPermissionDenied means a required capability is not authorized. The
// session fails; nothing prompts or retries here.
var ErrPermissionDenied = errors.New("session: camera or location permission denied")

// Outcome of one Run call.
type Outcome string

const (
	// OutcomeCompleted: submitted and marker written.
	OutcomeCompleted Outcome = "completed"
	// OutcomeAlreadyDone: a completion marker exists for today; the pipeline
	// never started (no camera, no network).
	OutcomeAlreadyDone Outcome = "already_done"
	// OutcomeInProgress: another session for the same key is still in flight.
	OutcomeInProgress Outcome = "in_progress"
	// OutcomeFailed: a stage failed; see Session.LastError.
	OutcomeFailed Outcome = "failed"
)

// Result pairs the outcome with the session, when one was created.
type Result struct {
	Outcome Outcome
	Session *Session
}

// Notifier surfaces terminal failures to the user. Exactly one alert is
// emitted per failed session.
type Notifier interface {
	Alert(title, message string)
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

func (LogNotifier) Alert(title, message string) {
	log.Printf("ALERT %s: %s", title, message)
}

// Runner coordinates the capture pipeline: permission gate, camera, encoder,
// location resolver, submission, completion marker. One linear flow per
// session; capture happens before encoding, encoding before location,
// location before submission.
type Runner struct {
	gate       permission.Gate
	camera     *camera.Controller
	resolver   *location.Resolver
	client     *submit.Client
	markers    marker.Store
	notify     Notifier
	encodeOpts photo.Options
	now        func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

// NewRunner wires the pipeline components. notify may be nil, in which case
// alerts go to the log.
func NewRunner(
	gate permission.Gate,
	cam *camera.Controller,
	resolver *location.Resolver,
	client *submit.Client,
	markers marker.Store,
	notify Notifier,
	encodeOpts photo.Options,
) *Runner {
	if notify == nil {
		notify = LogNotifier{}
	}
	return &Runner{
		gate:       gate,
		camera:     cam,
		resolver:   resolver,
		client:     client,
		markers:    markers,
		notify:     notify,
		encodeOpts: encodeOpts,
		now:        time.Now,
		inflight:   make(map[string]bool),
	}
}

// Run executes one capture session for the given presence event. Re-triggers
// for a key that already completed today short-circuit at the entry guard;
// re-triggers while a session is in flight are refused, so at most one session
// exists per (identity, kind, day).
//
// The returned error is nil except when the session failed (it then carries
// the originating stage) or the input was invalid.
func (r *Runner) Run(ctx context.Context, identity string, kind Kind) (Result, error) {
	if identity == "" {
		return Result{}, errors.New("session: identity required")
	}
	if kind != KindLogin && kind != KindLogout {
		return Result{}, errors.New("session: invalid kind")
	}

	day := marker.Day(r.now())
	key := marker.Key(identity, string(kind), day)

	// Entry guard: already done today means no camera and no network.
	done, err := r.markers.Get(ctx, key)
	if err != nil {
		return Result{Outcome: OutcomeFailed}, &StageError{Stage: StageMarker, Err: err}
	}
	if done {
		return Result{Outcome: OutcomeAlreadyDone}, nil
	}

	// Singleton per key: refuse a second concurrent session.
	r.mu.Lock()
	if r.inflight[key] {
		r.mu.Unlock()
		return Result{Outcome: OutcomeInProgress}, nil
	}
	r.inflight[key] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, key)
		r.mu.Unlock()
	}()

	sess := &Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		Kind:      kind,
		StartedAt: r.now(),
		State:     StateIdle,
	}

	granted, err := r.gate.Granted(ctx, permission.CapCamera, permission.CapLocation)
	if err == nil && !granted {
		err = ErrPermissionDenied
	}
	if err != nil {
		return r.failed(sess, StagePermission, err)
	}

	// Camera is held only for the capture itself; the controller releases the
	// handle before returning, so it is free before any terminal state.
	sess.advance(StateArmed)
	raw, err := r.camera.Acquire(ctx, func() { sess.advance(StateCapturing) })
	if err != nil {
		return r.failed(sess, StageCamera, err)
	}

	sess.advance(StateEncoding)
	encoded, err := photo.Encode(raw.Bytes, r.encodeOpts)
	if err != nil {
		return r.failed(sess, StageEncode, err)
	}
	sess.Photo = &encoded

	sess.advance(StateLocationPending)
	fix, retries, err := r.resolver.Resolve(ctx)
	sess.RetryCount = retries
	if err != nil {
		return r.failed(sess, StageLocation, err)
	}
	sess.Fix = &fix

	sess.advance(StateSubmitting)
	res := r.client.Submit(ctx, submit.Payload{
		Identity:  identity,
		Kind:      string(kind),
		Selfie:    encoded.Base64(),
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Timestamp: r.now().UTC().Format(time.RFC3339),
	})
	if res.Outcome != submit.OutcomeSuccess {
		return r.failed(sess, StageSubmit, errors.New(string(res.Outcome)+": "+res.Message))
	}

	// Marker is written only on a 2xx outcome, before the session closes. A
	// crash between the 2xx and this write causes one duplicate capture on the
	// next launch; the backend's own dedup is the backstop for that window.
	if err := r.markers.Set(ctx, key); err != nil {
		log.Printf("session %s: marker write failed after successful submission: %v", sess.ID, err)
	}

	// A successful logout closes the working day: the login marker is cleared
	// so the next login starts a fresh cycle.
	if kind == KindLogout {
		loginKey := marker.Key(identity, string(KindLogin), day)
		if err := r.markers.Delete(ctx, loginKey); err != nil {
			log.Printf("session %s: clearing login marker failed: %v", sess.ID, err)
		}
	}

	sess.advance(StateCompleted)
	log.Printf("session %s: %s presence for %s submitted (%d location retries)",
		sess.ID, kind, identity, retries)
	return Result{Outcome: OutcomeCompleted, Session: sess}, nil
}

func (r *Runner) failed(sess *Session, stage Stage, err error) (Result, error) {
	werr := sess.fail(stage, err)
	r.notify.Alert("Presence capture failed", werr.Error())
	return Result{Outcome: OutcomeFailed, Session: sess}, werr
}
