// Package random provides the randomness used by draws and rollovers.
//
// Production sources are ChaCha8 generators seeded from crypto/rand. Tests
// use NewSeeded to get a reproducible sequence.
package random

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// ErrEmpty is returned when sampling from an empty population
var ErrEmpty = errors.New("empty population")

// Source is a uniform random number source
type Source interface {
	// IntN returns a uniform integer in [0, n). It panics if n <= 0.
	IntN(n int) int
	// Float64 returns a uniform float in [0.0, 1.0).
	Float64() float64
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// NewSeed reads a 32-byte ChaCha8 seed from crypto/rand.
func NewSeed() ([32]byte, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("read random seed: %w", err)
	}
	return seed, nil
}

// New returns a goroutine-safe ChaCha8 source seeded from crypto/rand.
func New() (Source, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return &lockedSource{r: rand.New(rand.NewChaCha8(seed))}, nil
}

// NewSeeded returns a goroutine-safe deterministic source.
func NewSeeded(seed uint64) Source {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Pick selects one element uniformly at random. Every element has
// probability 1/len(items), so duplicates are weighted by their count.
func Pick[T any](src Source, items []T) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, ErrEmpty
	}
	return items[src.IntN(len(items))], nil
}

// Bernoulli returns true with probability p
func Bernoulli(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}
