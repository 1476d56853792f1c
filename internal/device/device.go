// Package device provides host-side implementations of the camera and
// location abstractions for development machines and kiosk hardware without
// real sensor bindings.
package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"os"
	"time"

	"presence/internal/camera"
	"presence/internal/location"
)

// FileCamera is a camera.Device that serves a still from a file, or a
// generated placeholder frame when no source is configured. Readiness is
// simulated with a warmup delay.
type FileCamera struct {
	Source string // path to a JPEG/PNG; empty means generated frame
	Warmup time.Duration
}

type fileHandle struct {
	source string
	ready  chan struct{}
	timer  *time.Timer
}

// Open arms the camera; the handle signals ready after the warmup period.
func (d *FileCamera) Open(_ context.Context) (camera.Handle, error) {
	h := &fileHandle{source: d.Source, ready: make(chan struct{}, 1)}
	warmup := d.Warmup
	if warmup <= 0 {
		warmup = 100 * time.Millisecond
	}
	h.timer = time.AfterFunc(warmup, func() { h.ready <- struct{}{} })
	return h, nil
}

func (h *fileHandle) Ready() <-chan struct{} { return h.ready }

func (h *fileHandle) Capture(_ context.Context, _ camera.Options) (camera.Raw, error) {
	if h.source != "" {
		data, err := os.ReadFile(h.source)
		if err != nil {
			return camera.Raw{}, fmt.Errorf("read camera source: %w", err)
		}
		return camera.Raw{Bytes: data, Format: "jpeg"}, nil
	}
	return placeholderFrame()
}

func (h *fileHandle) Release() error {
	h.timer.Stop()
	return nil
}

// placeholderFrame renders a flat gray 1280x960 JPEG.
func placeholderFrame() (camera.Raw, error) {
	const w, h = 1280, 960
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return camera.Raw{}, err
	}
	return camera.Raw{Bytes: buf.Bytes(), Width: w, Height: h, Format: "jpeg"}, nil
}

// StaticLocation is a location.Provider that reports fixed coordinates, for
// hosts without positioning hardware.
type StaticLocation struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Enabled   bool
}

func (p *StaticLocation) ServicesEnabled(_ context.Context) bool { return p.Enabled }

func (p *StaticLocation) Position(_ context.Context, _ location.Options) (location.Fix, error) {
	if !p.Enabled {
		return location.Fix{}, location.ErrTimeout
	}
	return location.Fix{
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Accuracy:   p.Accuracy,
		CapturedAt: time.Now(),
	}, nil
}

// TerminalPrompter gates the services-disabled retry loop on the operator:
// it blocks until a line is read from stdin or the context ends.
type TerminalPrompter struct{}

func (TerminalPrompter) RetryServicesDisabled(ctx context.Context) error {
	log.Println("Location services disabled. Press Enter to retry.")
	done := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Scan()
		done <- scanner.Err()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
