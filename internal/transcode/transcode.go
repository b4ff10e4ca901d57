package transcode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"strings"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxWidth  = 400
	DefaultMaxHeight = 300
	DefaultQuality   = 80

	// MaxSourcePixels bounds what a source image may declare before it is
	// decoded into memory.
	MaxSourcePixels = 40_000_000
)

type Box struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

func DefaultBox() Box {
	return Box{MaxWidth: DefaultMaxWidth, MaxHeight: DefaultMaxHeight, Quality: DefaultQuality}
}

type Result struct {
	DataURI string
	Bytes   []byte
	Width   int
	Height  int
	Format  string
}

type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode image: " + e.Reason
	}
	return fmt.Sprintf("decode image: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Transcode decodes a data URI, downscales it into box and re-encodes it as JPEG.
func Transcode(dataURI string, box Box) (Result, error) {
	raw, err := DecodeDataURI(dataURI)
	if err != nil {
		return Result{}, err
	}
	return TranscodeBytes(raw, box)
}

func TranscodeBytes(raw []byte, box Box) (Result, error) {
	box = box.normalized()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Result{}, &DecodeError{Reason: "unsupported or corrupt image data", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return Result{}, &DecodeError{Reason: fmt.Sprintf("image dimensions %dx%d exceed the %d pixel limit", cfg.Width, cfg.Height, MaxSourcePixels)}
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Result{}, &DecodeError{Reason: "unsupported or corrupt image data", Err: err}
	}

	b := src.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), box.MaxWidth, box.MaxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; flatten onto white like a canvas export would.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: box.Quality}); err != nil {
		return Result{}, fmt.Errorf("encode jpeg: %w", err)
	}

	out := buf.Bytes()
	return Result{
		DataURI: EncodeDataURI("image/jpeg", out),
		Bytes:   out,
		Width:   w,
		Height:  h,
		Format:  format,
	}, nil
}

// FitSize scales by width first, then by height, and never enlarges.
func FitSize(width, height, maxWidth, maxHeight int) (int, int) {
	w, h := float64(width), float64(height)
	if maxWidth > 0 && w > float64(maxWidth) {
		h = h * float64(maxWidth) / w
		w = float64(maxWidth)
	}
	if maxHeight > 0 && h > float64(maxHeight) {
		w = w * float64(maxHeight) / h
		h = float64(maxHeight)
	}
	return clampDim(w), clampDim(h)
}

func clampDim(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}

func DecodeDataURI(dataURI string) ([]byte, error) {
	s := strings.TrimSpace(dataURI)
	if !strings.HasPrefix(s, "data:") {
		return nil, &DecodeError{Reason: "not a data URI"}
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return nil, &DecodeError{Reason: "data URI has no payload"}
	}
	meta, payload := s[len("data:"):comma], s[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, &DecodeError{Reason: "data URI is not base64 encoded"}
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, &DecodeError{Reason: "invalid base64 payload", Err: err}
		}
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	return raw, nil
}

func EncodeDataURI(mimeType string, raw []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func (b Box) normalized() Box {
	if b.MaxWidth <= 0 {
		b.MaxWidth = DefaultMaxWidth
	}
	if b.MaxHeight <= 0 {
		b.MaxHeight = DefaultMaxHeight
	}
	if b.Quality <= 0 || b.Quality > 100 {
		b.Quality = DefaultQuality
	}
	return b
}
