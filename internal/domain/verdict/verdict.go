// Package verdict holds the immutable outcome of a single scan.
package verdict

import (
	"maps"
	"slices"
	"time"
)

// Flag is a tag explaining a verdict.
type Flag string

// Flag constants.
const (
	FlagDomainBlocklist  Flag = "domain_blocklist"
	FlagError            Flag = "error"
	FlagImageDecodeError Flag = "image_decode_error"
	FlagToxicText        Flag = "toxic_text"
	FlagNSFWText         Flag = "nsfw_text"
	FlagKeywordsDetected Flag = "keywords_detected"
	FlagNSFWImage        Flag = "nsfw_image"
)

// UnsafeThreshold is the score at and above which content is unsafe.
const UnsafeThreshold = 0.5

// Params are the inputs to New.
type Params struct {
	Safe        bool
	Score       float64
	Uncertainty float64
	Flags       []Flag
	Details     map[string]any
	Latency     time.Duration
}

// Result is the outcome of a scan. Values are never mutated after New,
// so a cached Result may be shared across callers.
type Result struct {
	safe        bool
	score       float64
	uncertainty float64
	flags       []Flag
	details     map[string]any
	latency     time.Duration
}

// New creates a Result. Score and uncertainty are clamped to [0,1];
// duplicate flags are dropped keeping first-seen order.
func New(p Params) Result {
	return Result{
		safe:        p.Safe,
		score:       clamp01(p.Score),
		uncertainty: clamp01(p.Uncertainty),
		flags:       dedupe(p.Flags),
		details:     cloneDetails(p.Details),
		latency:     p.Latency,
	}
}

// Blocked is the short-circuit verdict for a blocklisted domain.
func Blocked(details map[string]any, latency time.Duration) Result {
	return New(Params{
		Safe:        false,
		Score:       1.0,
		Uncertainty: 0.0,
		Flags:       []Flag{FlagDomainBlocklist},
		Details:     details,
		Latency:     latency,
	})
}

// FailOpen is the verdict for content that could not be classified.
func FailOpen(flag Flag, details map[string]any, latency time.Duration) Result {
	return New(Params{
		Safe:        true,
		Score:       0.0,
		Uncertainty: 1.0,
		Flags:       []Flag{flag},
		Details:     details,
		Latency:     latency,
	})
}

// IsSafe reports whether content was judged safe.
func (r Result) IsSafe() bool { return r.safe }

// Score returns the fused threat score.
func (r Result) Score() float64 { return r.score }

// Uncertainty returns the fused uncertainty.
func (r Result) Uncertainty() float64 { return r.uncertainty }

// Flags returns a copy of the flags in order.
func (r Result) Flags() []Flag {
	out := make([]Flag, len(r.flags))
	copy(out, r.flags)
	return out
}

// HasFlag reports whether f is set.
func (r Result) HasFlag(f Flag) bool {
	for _, x := range r.flags {
		if x == f {
			return true
		}
	}
	return false
}

// Details returns a copy of the diagnostic details. Slice and map values are
// copied too, so callers cannot reach the stored Result through them.
func (r Result) Details() map[string]any { return cloneDetails(r.details) }

// Latency returns the scan latency.
func (r Result) Latency() time.Duration { return r.latency }

// LatencyMs returns the scan latency in milliseconds.
func (r Result) LatencyMs() float64 {
	return float64(r.latency) / float64(time.Millisecond)
}

// Failed reports whether the verdict is a fail-open error result.
func (r Result) Failed() bool {
	return r.HasFlag(FlagError) || r.HasFlag(FlagImageDecodeError)
}

func cloneDetails(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []string:
		return slices.Clone(x)
	case []float64:
		return slices.Clone(x)
	case []Flag:
		return slices.Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]float64:
		return maps.Clone(x)
	case map[string]string:
		return maps.Clone(x)
	case map[string]any:
		return cloneDetails(x)
	default:
		return v
	}
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func dedupe(flags []Flag) []Flag {
	out := make([]Flag, 0, len(flags))
	seen := make(map[Flag]struct{}, len(flags))
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
