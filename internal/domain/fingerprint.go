package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Fingerprint key prefixes.
const (
	fingerprintURL   = "url:"
	fingerprintText  = "text:"
	fingerprintImage = "image:"
)

// ParseScanURL validates a URL for scanning. Only http and https with a host are accepted.
func ParseScanURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, err.Error())
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// URLFingerprint returns the cache key for a URL: lower-cased scheme and host,
// path and query kept, fragment dropped. Unparseable input is keyed verbatim.
func URLFingerprint(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fingerprintURL + raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return fingerprintURL + u.String()
}

// TextFingerprint returns the cache key for a text payload.
func TextFingerprint(text string) string {
	return fingerprintText + sha256Hex([]byte(text))
}

// ImageFingerprint returns the cache key for an image payload.
func ImageFingerprint(data []byte) string {
	return fingerprintImage + sha256Hex(data)
}

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
