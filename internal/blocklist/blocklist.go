// Package blocklist answers "is this domain blocked" from a Bloom filter
// populated once at startup.
package blocklist

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/kailas-cloud/guardscan/internal/filter/bloom"
)

//go:embed seed/domains.txt
var seedList []byte

// Prefixes are the host variants added alongside every blocked domain.
var Prefixes = []string{"www.", "m.", "cdn.", "img.", "video.", "api."}

// Stats describes the filter geometry.
type Stats struct {
	Domains       int     `json:"domains"`
	Items         uint64  `json:"items"`
	Bits          uint64  `json:"bits"`
	HashCount     int     `json:"hash_count"`
	TargetRate    float64 `json:"target_fp_rate"`
	EstimatedRate float64 `json:"estimated_fp_rate"`
}

// Blocklist is a read-only set of blocked domains.
type Blocklist struct {
	filter           *bloom.Filter
	domains          int
	matchRegistrable bool
}

// New builds a blocklist from domains. The filter is sized for the larger of
// expected and the real item count (each domain plus its prefix variants).
func New(expected uint64, fpRate float64, domains []string) (*Blocklist, error) {
	items := uint64(len(domains) * (1 + len(Prefixes)))
	if items < expected {
		items = expected
	}
	if items == 0 {
		items = 1
	}

	f, err := bloom.New(items, fpRate)
	if err != nil {
		return nil, fmt.Errorf("blocklist filter: %w", err)
	}

	count := 0
	for _, d := range domains {
		d = Canonical(d)
		if d == "" {
			continue
		}
		for _, v := range Variants(d) {
			f.AddString(v)
		}
		count++
	}
	return &Blocklist{filter: f, domains: count}, nil
}

// WithRegistrableMatch makes Lookup also test the registrable domain (eTLD+1)
// of the host, so any subdomain of a blocked domain is caught.
func (b *Blocklist) WithRegistrableMatch(enabled bool) *Blocklist {
	b.matchRegistrable = enabled
	return b
}

// IsBlocked reports whether domain is in the filter. No normalisation is applied.
func (b *Blocklist) IsBlocked(domain string) bool {
	return b.filter.CheckString(domain)
}

// Lookup canonicalises host and checks it, then its registrable domain when
// enabled. It returns the name that matched.
func (b *Blocklist) Lookup(host string) (string, bool) {
	h := Canonical(host)
	if h == "" {
		return "", false
	}
	if b.IsBlocked(h) {
		return h, true
	}
	if !b.matchRegistrable {
		return "", false
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(h)
	if err != nil || reg == h {
		return "", false
	}
	if b.IsBlocked(reg) {
		return reg, true
	}
	return "", false
}

// Stats returns the filter geometry.
func (b *Blocklist) Stats() Stats {
	return Stats{
		Domains:       b.domains,
		Items:         b.filter.Added(),
		Bits:          b.filter.Size(),
		HashCount:     b.filter.HashCount(),
		TargetRate:    b.filter.TargetRate(),
		EstimatedRate: b.filter.FalsePositiveRate(),
	}
}

// Variants returns domain followed by each prefixed form.
func Variants(domain string) []string {
	out := make([]string, 0, 1+len(Prefixes))
	out = append(out, domain)
	for _, p := range Prefixes {
		out = append(out, p+domain)
	}
	return out
}

// Canonical lower-cases a host, strips any port, brackets and trailing dot,
// and converts internationalised names to ASCII.
func Canonical(host string) string {
	h := strings.TrimSpace(host)
	if hh, _, err := net.SplitHostPort(h); err == nil {
		h = hh
	}
	h = strings.TrimPrefix(h, "[")
	h = strings.TrimSuffix(h, "]")
	h = strings.TrimSuffix(h, ".")
	h = strings.ToLower(h)
	if h == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(h); err == nil {
		return ascii
	}
	return h
}

// Seed returns the built-in blocked domains.
func Seed() ([]string, error) {
	domains, err := parse(bytes.NewReader(seedList))
	if err != nil {
		return nil, fmt.Errorf("blocklist seed: %w", err)
	}
	return domains, nil
}

// LoadFile reads a domain list: one per line, blank lines and # comments ignored.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open blocklist %s: %w", path, err)
	}
	defer f.Close()

	domains, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("read blocklist %s: %w", path, err)
	}
	return domains, nil
}

func parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return out, nil
}
