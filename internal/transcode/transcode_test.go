package transcode

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"
)

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return EncodeDataURI("image/png", buf.Bytes())
}

func TestFitSize(t *testing.T) {
	cases := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{name: "within bounds", w: 200, h: 100, wantW: 200, wantH: 100},
		{name: "exact bounds", w: 400, h: 300, wantW: 400, wantH: 300},
		{name: "too wide", w: 800, h: 400, wantW: 400, wantH: 200},
		{name: "too tall", w: 300, h: 600, wantW: 150, wantH: 300},
		{name: "wide then tall", w: 1000, h: 900, wantW: 333, wantH: 300},
		{name: "sliver", w: 4000, h: 2, wantW: 400, wantH: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := FitSize(tc.w, tc.h, 400, 300)
			if w != tc.wantW || h != tc.wantH {
				t.Fatalf("got %dx%d want %dx%d", w, h, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestFitSizeBoundsAndAspect(t *testing.T) {
	for w := 50; w <= 2050; w += 250 {
		for h := 40; h <= 1640; h += 200 {
			gw, gh := FitSize(w, h, 400, 300)
			if gw > 400 || gh > 300 {
				t.Fatalf("%dx%d -> %dx%d exceeds box", w, h, gw, gh)
			}
			if w <= 400 && h <= 300 {
				if gw != w || gh != h {
					t.Fatalf("%dx%d resized to %dx%d", w, h, gw, gh)
				}
				continue
			}
			want := float64(w) / float64(h)
			got := float64(gw) / float64(gh)
			// one pixel of rounding on the shorter side
			tol := want / float64(min(gw, gh))
			if math.Abs(got-want) > tol+1e-9 {
				t.Fatalf("%dx%d -> %dx%d ratio %.4f want %.4f", w, h, gw, gh, got, want)
			}
		}
	}
}

func TestTranscodeDownscales(t *testing.T) {
	res, err := Transcode(pngDataURI(t, 800, 500), DefaultBox())
	if err != nil {
		t.Fatal(err)
	}
	if res.Width != 400 || res.Height != 250 {
		t.Fatalf("got %dx%d", res.Width, res.Height)
	}
	if res.Format != "png" {
		t.Fatalf("format=%s", res.Format)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(res.Bytes))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 400 || cfg.Height != 250 {
		t.Fatalf("jpeg is %dx%d", cfg.Width, cfg.Height)
	}
	raw, err := DecodeDataURI(res.DataURI)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, res.Bytes) {
		t.Fatal("data uri does not carry the encoded bytes")
	}
}

func TestTranscodeKeepsSmallImageSize(t *testing.T) {
	res, err := Transcode(pngDataURI(t, 120, 80), DefaultBox())
	if err != nil {
		t.Fatal(err)
	}
	if res.Width != 120 || res.Height != 80 {
		t.Fatalf("got %dx%d", res.Width, res.Height)
	}
}

func TestTranscodeDecodeErrors(t *testing.T) {
	inputs := map[string]string{
		"not a uri":   "https://example.test/a.png",
		"no payload":  "data:image/png;base64",
		"not base64":  "data:image/png,abc",
		"bad base64":  "data:image/png;base64,@@@",
		"not image":   EncodeDataURI("image/png", []byte("plain text, not pixels")),
		"empty bytes": "data:image/png;base64,",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Transcode(in, DefaultBox())
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsDecodeError(err) {
				t.Fatalf("not a DecodeError: %v", err)
			}
		})
	}
}

// pngHeaderOnly is a PNG whose IHDR declares w x h pixels with no image data
// behind it.
func pngHeaderOnly(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestTranscodeRejectsOversizedSource(t *testing.T) {
	_, err := TranscodeBytes(pngHeaderOnly(40000, 40000), DefaultBox())
	if err == nil {
		t.Fatal("expected oversized image to be rejected")
	}
	if !IsDecodeError(err) {
		t.Fatalf("err=%T %v", err, err)
	}

	_, err = Transcode(EncodeDataURI("image/png", pngHeaderOnly(40000, 40000)), DefaultBox())
	if !IsDecodeError(err) {
		t.Fatalf("data URI path err=%v", err)
	}
}
