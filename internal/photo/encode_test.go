package photo

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"
)

func rawJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestEncode_FitsWithinBounds(t *testing.T) {
	raw := rawJPEG(t, 1600, 1200)

	enc, err := Encode(raw, Options{MaxWidth: 800, MaxHeight: 600, Quality: 80})
	require.NoError(t, err)
	require.Equal(t, 800, enc.Width)
	require.Equal(t, 600, enc.Height)
	require.Equal(t, "image/jpeg", enc.MIMEType)
	require.NotEmpty(t, enc.Bytes)
}

func TestEncode_PreservesAspectRatio(t *testing.T) {
	// 2000x500 source: width is the binding constraint
	raw := rawJPEG(t, 2000, 500)

	enc, err := Encode(raw, Options{MaxWidth: 800, MaxHeight: 600, Quality: 80})
	require.NoError(t, err)
	require.Equal(t, 800, enc.Width)
	require.Equal(t, 200, enc.Height)
}

func TestEncode_NeverUpscales(t *testing.T) {
	raw := rawJPEG(t, 320, 240)

	enc, err := Encode(raw, Options{MaxWidth: 800, MaxHeight: 600, Quality: 80})
	require.NoError(t, err)
	require.Equal(t, 320, enc.Width)
	require.Equal(t, 240, enc.Height)
}

func TestEncode_DefaultsApplied(t *testing.T) {
	raw := rawJPEG(t, 1024, 1024)

	enc, err := Encode(raw, Options{})
	require.NoError(t, err)
	require.LessOrEqual(t, enc.Width, 800)
	require.LessOrEqual(t, enc.Height, 600)
}

func TestEncode_EmptyCapture(t *testing.T) {
	_, err := Encode(nil, DefaultOptions())
	require.ErrorIs(t, err, ErrEmptyCapture)
}

func TestEncode_Garbage(t *testing.T) {
	_, err := Encode([]byte("not an image"), DefaultOptions())
	require.Error(t, err)
}

func TestEncoded_Base64RoundTrip(t *testing.T) {
	raw := rawJPEG(t, 100, 100)

	enc, err := Encode(raw, DefaultOptions())
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(enc.Base64())
	require.NoError(t, err)
	require.Equal(t, enc.Bytes, decoded)
}
