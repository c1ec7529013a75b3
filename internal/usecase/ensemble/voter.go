// Package ensemble fuses per-modality classifier scores into one score and an
// uncertainty estimate.
package ensemble

import (
	"math"

	"github.com/kailas-cloud/guardscan/internal/domain/modality"
)

// weights is indexed by modality.Modality.
var weights = [modality.Count]float64{
	modality.Vision:   0.5,
	modality.Text:     0.3,
	modality.Audio:    0.2,
	modality.Metadata: 0.1,
}

// SingleModalityUncertainty is reported when only one score is present.
const SingleModalityUncertainty = 0.1

// Weight returns the fixed fusion weight of m, or 0 for an invalid modality.
func Weight(m modality.Modality) float64 {
	if !m.IsValid() {
		return 0
	}
	return weights[m]
}

// Scores is a sparse set of per-modality scores. The zero value is empty.
type Scores struct {
	values  [modality.Count]float64
	present [modality.Count]bool
}

// Set records the score for m. Invalid modalities are ignored.
func (s *Scores) Set(m modality.Modality, v float64) {
	if !m.IsValid() {
		return
	}
	s.values[m] = v
	s.present[m] = true
}

// Get returns the score for m and whether it was set.
func (s *Scores) Get(m modality.Modality) (float64, bool) {
	if !m.IsValid() {
		return 0, false
	}
	return s.values[m], s.present[m]
}

// Len returns how many modalities have a score.
func (s *Scores) Len() int {
	n := 0
	for _, ok := range s.present {
		if ok {
			n++
		}
	}
	return n
}

// Map returns the present scores keyed by modality name.
func (s *Scores) Map() map[string]float64 {
	out := make(map[string]float64, s.Len())
	for _, m := range modality.All() {
		if v, ok := s.Get(m); ok {
			out[m.String()] = v
		}
	}
	return out
}

// Vote returns (score, uncertainty).
//
// score is the weighted mean over the modalities present:
//
//	score = Σ w_m·s_m / Σ w_m
//
// uncertainty is min(1, 2·Var(s)) using the population variance of the raw
// scores when more than one is present, and SingleModalityUncertainty otherwise.
// Empty input yields (0, 1).
func Vote(s Scores) (float64, float64) {
	var weighted, total float64
	values := make([]float64, 0, modality.Count)
	for _, m := range modality.All() {
		v, ok := s.Get(m)
		if !ok {
			continue
		}
		weighted += v * weights[m]
		total += weights[m]
		values = append(values, v)
	}
	if total == 0 {
		return 0.0, 1.0
	}

	score := weighted / total
	if len(values) <= 1 {
		return score, SingleModalityUncertainty
	}
	return score, math.Min(1.0, populationVariance(values)*2)
}

func populationVariance(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return sq / float64(len(xs))
}
