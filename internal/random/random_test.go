package random

import (
	"errors"
	"math"
	"testing"
)

func TestNewSeedVaries(t *testing.T) {
	a, err := NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	b, err := NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	if a == b {
		t.Fatal("expected two different seeds")
	}
}

func TestPickEmpty(t *testing.T) {
	_, err := Pick(NewSeeded(1), []string{})
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestPickIsUniformOverElements(t *testing.T) {
	src := NewSeeded(42)
	// u1 holds three entries, u2 two, u3 one
	items := []string{"u1", "u1", "u1", "u2", "u2", "u3"}
	const trials = 60000

	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		v, err := Pick(src, items)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		counts[v]++
	}

	want := map[string]float64{"u1": 3.0 / 6, "u2": 2.0 / 6, "u3": 1.0 / 6}
	for user, p := range want {
		got := float64(counts[user]) / trials
		// five standard deviations
		tol := 5 * math.Sqrt(p*(1-p)/trials)
		if math.Abs(got-p) > tol {
			t.Errorf("%s: frequency %.4f, expected %.4f ± %.4f", user, got, p, tol)
		}
	}
}

func TestBernoulli(t *testing.T) {
	src := NewSeeded(7)
	if Bernoulli(src, 0) {
		t.Fatal("p=0 must never succeed")
	}
	if !Bernoulli(src, 1) {
		t.Fatal("p=1 must always succeed")
	}

	const trials = 50000
	hits := 0
	for i := 0; i < trials; i++ {
		if Bernoulli(src, 0.2) {
			hits++
		}
	}
	got := float64(hits) / trials
	tol := 5 * math.Sqrt(0.2*0.8/trials)
	if math.Abs(got-0.2) > tol {
		t.Fatalf("frequency %.4f, expected 0.2 ± %.4f", got, tol)
	}
}

func TestNewSourceIsUsable(t *testing.T) {
	src, err := New()
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	for i := 0; i < 100; i++ {
		if n := src.IntN(3); n < 0 || n >= 3 {
			t.Fatalf("IntN out of range: %d", n)
		}
	}
}
