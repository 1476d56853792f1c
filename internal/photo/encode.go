package photo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
)

var ErrEmptyCapture = errors.New("photo: empty capture")

// Encoded is a bounded-size transportable still.
type Encoded struct {
	Bytes    []byte
	Width    int
	Height   int
	MIMEType string
}

// Base64 returns the wire form used in the submission payload.
func (e Encoded) Base64() string {
	return base64.StdEncoding.EncodeToString(e.Bytes)
}

// Options bounds the output size and compression.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // JPEG quality, 0-100
}

// DefaultOptions matches the backend's expected selfie dimensions.
func DefaultOptions() Options {
	return Options{MaxWidth: 800, MaxHeight: 600, Quality: 80}
}

// Encode re-encodes a raw capture as a JPEG no larger than MaxWidth x
// MaxHeight. Resize policy: scale to fit within the bounds preserving aspect
// ratio; images already within bounds are never upscaled.
func Encode(raw []byte, opts Options) (Encoded, error) {
	if len(raw) == 0 {
		return Encoded{}, ErrEmptyCapture
	}
	if opts.MaxWidth <= 0 || opts.MaxHeight <= 0 {
		d := DefaultOptions()
		opts.MaxWidth, opts.MaxHeight = d.MaxWidth, d.MaxHeight
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions().Quality
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return Encoded{}, fmt.Errorf("photo: decode: %w", err)
	}

	b := img.Bounds()
	if b.Dx() > opts.MaxWidth || b.Dy() > opts.MaxHeight {
		img = imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return Encoded{}, fmt.Errorf("photo: encode: %w", err)
	}

	out := img.Bounds()
	return Encoded{
		Bytes:    buf.Bytes(),
		Width:    out.Dx(),
		Height:   out.Dy(),
		MIMEType: "image/jpeg",
	}, nil
}
