package content

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/kailas-cloud/guardscan/internal/domain"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        Kind
	}{
		{"image header", "image/jpeg", []byte("whatever"), KindImage},
		{"header case insensitive", "Image/WebP", nil, KindImage},
		{"html header", "text/html; charset=utf-8", []byte("\x89PNG"), KindText},
		{"xhtml header", "application/xhtml+xml", nil, KindText},
		{"jpeg magic", "application/octet-stream", []byte{0xff, 0xd8, 0xff, 0xe0}, KindImage},
		{"png magic", "", []byte("\x89PNG\r\n\x1a\n"), KindImage},
		{"default text", "application/json", []byte(`{"a":1}`), KindText},
		{"empty", "", nil, KindText},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sniff(tc.contentType, tc.body); got != tc.want {
				t.Errorf("Sniff(%q) = %v, want %v", tc.contentType, got, tc.want)
			}
		})
	}
}

func TestDecodeText_HTML(t *testing.T) {
	page := `<!DOCTYPE html><html><head><title>Hot Deals</title>
<meta name="description" content="adult content inside">
<script>var hidden = "porn";</script><style>.x{}</style></head>
<body><p>Hello <b>world</b></p><img src="a.jpg" alt="nude beach"></body></html>`

	got, err := DecodeText("text/html; charset=utf-8", []byte(page))
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	for _, want := range []string{"Hot Deals", "adult content inside", "Hello", "world", "nude beach"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "hidden") || strings.Contains(got, ".x{}") {
		t.Errorf("script/style leaked into %q", got)
	}
}

func TestDecodeText_HTMLSniffedWithoutHeader(t *testing.T) {
	got, err := DecodeText("", []byte("  <html><body>plain <i>words</i></body></html>"))
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if got != "plain words" {
		t.Errorf("got %q, want %q", got, "plain words")
	}
}

func TestDecodeText_Charset(t *testing.T) {
	got, err := DecodeText("text/plain; charset=iso-8859-1", []byte("caf\xe9"))
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if got != "café" {
		t.Errorf("got %q, want café", got)
	}
}

func TestDecodeText_PlainPassthrough(t *testing.T) {
	got, err := DecodeText("text/plain; charset=utf-8", []byte("just some text"))
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if got != "just some text" {
		t.Errorf("got %q", got)
	}
}

func TestDetectLanguage(t *testing.T) {
	if got := DetectLanguage("Это простой текст на русском языке, написанный для проверки определения языка."); got != "ru" {
		t.Errorf("russian detected as %q", got)
	}
	if got := DetectLanguage("The quick brown fox jumps over the lazy dog while the children are playing in the garden."); got != "en" {
		t.Errorf("english detected as %q", got)
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestImageDecoder_Decode(t *testing.T) {
	data := encodePNG(t, 8, 4)
	info, err := NewImageDecoder(0).Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Format != "png" || info.Width != 8 || info.Height != 4 {
		t.Errorf("info = %+v", info)
	}
	if Sniff("", data) != KindImage {
		t.Error("encoded png should sniff as image")
	}
}

func TestImageDecoder_Failures(t *testing.T) {
	valid := encodePNG(t, 16, 16)
	tests := []struct {
		name string
		data []byte
		dec  *ImageDecoder
	}{
		{"empty", nil, NewImageDecoder(0)},
		{"garbage", []byte("definitely not an image"), NewImageDecoder(0)},
		{"truncated", valid[:len(valid)/2], NewImageDecoder(0)},
		{"too many pixels", valid, NewImageDecoder(100)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.dec.Decode(tc.data)
			if !errors.Is(err, domain.ErrImageDecode) {
				t.Errorf("expected ErrImageDecode, got %v", err)
			}
		})
	}
}

func TestSimilarityHash(t *testing.T) {
	if h := SimilarityHash([]byte("short")); h != "" {
		t.Errorf("short input hash = %q, want empty", h)
	}

	rng := rand.New(rand.NewPCG(7, 9))
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(rng.IntN(256))
	}
	h1 := SimilarityHash(data)
	if h1 == "" {
		t.Fatal("expected hash for 4KiB random input")
	}
	if h2 := SimilarityHash(data); h1 != h2 {
		t.Errorf("hash not deterministic: %q vs %q", h1, h2)
	}
}
