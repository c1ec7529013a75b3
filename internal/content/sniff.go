// Package content classifies fetched bodies and turns them into classifier input.
package content

import (
	"bytes"
	"strings"
)

// Kind is the coarse type of fetched content.
type Kind uint8

// Kind values.
const (
	KindText Kind = iota
	KindImage
)

func (k Kind) String() string {
	if k == KindImage {
		return "image"
	}
	return "text"
}

var (
	jpegMagic = []byte{0xff, 0xd8}
	pngMagic  = []byte("\x89PNG")
)

// Sniff decides whether body should be scanned as an image or as text.
// The Content-Type header wins when it names either; otherwise JPEG and PNG
// signatures are recognised and everything else is text.
func Sniff(contentType string, body []byte) Kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "image"):
		return KindImage
	case strings.Contains(ct, "text"), strings.Contains(ct, "html"):
		return KindText
	case bytes.HasPrefix(body, jpegMagic), bytes.HasPrefix(body, pngMagic):
		return KindImage
	}
	return KindText
}
