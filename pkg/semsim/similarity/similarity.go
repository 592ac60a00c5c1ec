// Package similarity computes embedding-based cosine similarity between texts.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ukaji3/semsim-go/pkg/semsim/embedding"
)

// Side identifies which text of a pair failed.
type Side string

const (
	SideReference Side = "reference"
	SideCandidate Side = "candidate"
)

var (
	// ErrZeroNorm is returned when an embedding vector has zero length.
	ErrZeroNorm = errors.New("embedding has zero norm")
	// ErrDimensionMismatch is returned when the two embeddings differ in size.
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
)

// ScoringError is a failure to score a single pair. It is recoverable at the
// row level.
type ScoringError struct {
	Side Side
	Err  error
}

func (e *ScoringError) Error() string {
	if e.Side == "" {
		return fmt.Sprintf("scoring failed: %v", e.Err)
	}
	return fmt.Sprintf("scoring failed (%s): %v", e.Side, e.Err)
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}

// Scorer turns a pair of texts into a similarity score in [-1, 1].
type Scorer struct {
	svc embedding.Service
}

// NewScorer returns a Scorer backed by svc.
func NewScorer(svc embedding.Service) *Scorer {
	return &Scorer{svc: svc}
}

// Score embeds both texts and returns the cosine of the angle between them.
// Empty strings are embedded like any other text.
func (s *Scorer) Score(ctx context.Context, reference, candidate string) (float64, error) {
	a, err := s.svc.Embed(ctx, reference)
	if err != nil {
		return 0, &ScoringError{Side: SideReference, Err: err}
	}
	b, err := s.svc.Embed(ctx, candidate)
	if err != nil {
		return 0, &ScoringError{Side: SideCandidate, Err: err}
	}
	return Cosine(a, b)
}

// Cosine returns the dot product of the L2-normalised vectors a and b.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &ScoringError{Err: fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))}
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 {
		return 0, &ScoringError{Side: SideReference, Err: ErrZeroNorm}
	}
	if nb == 0 {
		return 0, &ScoringError{Side: SideCandidate, Err: ErrZeroNorm}
	}
	return clamp(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}

func clamp(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}
