package camera

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout means the camera never signalled readiness within the bound.
	ErrTimeout = errors.New("camera: ready timeout")
	// ErrUnavailable means the camera could not be opened or the capture failed.
	ErrUnavailable = errors.New("camera: unavailable")
)

// Raw is an unprocessed still straight from the device.
type Raw struct {
	Bytes  []byte
	Width  int
	Height int
	Format string // e.g. "jpeg"
}

// Options carries per-capture knobs.
type Options struct {
	// Quality is the device-level capture quality hint, 0..1.
	Quality float64
}

// Handle is an opened camera. Ready signals when the device can take a still;
// a device that reinitializes may signal more than once.
type Handle interface {
	Ready() <-chan struct{}
	Capture(ctx context.Context, opts Options) (Raw, error)
	Release() error
}

// Device opens camera handles.
type Device interface {
	Open(ctx context.Context) (Handle, error)
}

// Controller owns the camera for the duration of one capture session and
// guarantees exactly one still per session.
type Controller struct {
	device       Device
	readyTimeout time.Duration
	opts         Options
}

// NewController wraps a device. readyTimeout bounds the wait for the ready
// signal; zero means 20s.
func NewController(device Device, readyTimeout time.Duration, opts Options) *Controller {
	if readyTimeout <= 0 {
		readyTimeout = 20 * time.Second
	}
	return &Controller{device: device, readyTimeout: readyTimeout, opts: opts}
}

// Acquire opens the device, waits for a single ready signal, captures one
// still, and releases the device. The handle is released on every path before
// Acquire returns. Extra ready signals for the same session are ignored: the
// already-captured guard makes a reinitializing camera harmless.
//
// onReady, if non-nil, runs once when the ready signal is first observed.
func (c *Controller) Acquire(ctx context.Context, onReady func()) (Raw, error) {
	handle, err := c.device.Open(ctx)
	if err != nil {
		return Raw{}, fmt.Errorf("%w: open: %v", ErrUnavailable, err)
	}
	defer func() { _ = handle.Release() }()

	timer := time.NewTimer(c.readyTimeout)
	defer timer.Stop()

	captured := false
	for {
		select {
		case <-ctx.Done():
			return Raw{}, ctx.Err()
		case <-timer.C:
			return Raw{}, ErrTimeout
		case <-handle.Ready():
			if captured {
				// second ready for an already-captured session
				continue
			}
			captured = true
			if onReady != nil {
				onReady()
			}
			shot, err := handle.Capture(ctx, c.opts)
			if err != nil {
				return Raw{}, fmt.Errorf("%w: capture: %v", ErrUnavailable, err)
			}
			return shot, nil
		}
	}
}
