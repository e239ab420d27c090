// Package weekkey maps instants to weekly draw cycles.
//
// A week starts at a configured anchor (weekday and time of day in a fixed
// UTC offset) and lasts exactly seven days. The key of a week is the ISO
// year and week of its anchor, formatted as "2026-W42". All phase boundaries
// are offsets from the anchor, so they never drift with the wall clock.
package weekkey

import (
	"errors"
	"fmt"
	"time"
)

const week = 7 * 24 * time.Hour

// ErrInvalidKey is returned for malformed or out-of-range week keys
var ErrInvalidKey = errors.New("invalid week key")

// Anchor is the instant inside every week at which a new cycle begins
type Anchor struct {
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

// Phases holds the offsets of the weekly phases relative to the anchor
type Phases struct {
	CodeLiveOffset time.Duration
	DrawOffset     time.Duration
	ClaimWindow    time.Duration
}

// Windows are the phase boundaries of one week
type Windows struct {
	WeekKey             string        `json:"week_key"`
	Start               time.Time     `json:"start"`
	End                 time.Time     `json:"end"`
	CodeLiveStart       time.Time     `json:"code_live_start"`
	DrawAt              time.Time     `json:"draw_at"`
	ClaimExpiryDuration time.Duration `json:"claim_expiry_duration"`
}

// Resolver computes week keys and phase windows. It holds no mutable state.
type Resolver struct {
	offset time.Duration // anchor distance from Monday 00:00
	loc    *time.Location
	phases Phases
}

// NewResolver validates the anchor and phases and returns a Resolver
func NewResolver(anchor Anchor, phases Phases) (*Resolver, error) {
	if anchor.Hour < 0 || anchor.Hour > 23 || anchor.Minute < 0 || anchor.Minute > 59 {
		return nil, fmt.Errorf("anchor time %02d:%02d out of range", anchor.Hour, anchor.Minute)
	}
	if anchor.Weekday < time.Sunday || anchor.Weekday > time.Saturday {
		return nil, fmt.Errorf("anchor weekday %d out of range", anchor.Weekday)
	}
	if phases.CodeLiveOffset < 0 || phases.CodeLiveOffset >= week {
		return nil, fmt.Errorf("code live offset %s must be within one week", phases.CodeLiveOffset)
	}
	if phases.DrawOffset < phases.CodeLiveOffset || phases.DrawOffset >= week {
		return nil, fmt.Errorf("draw offset %s must be between code live offset and one week", phases.DrawOffset)
	}
	if phases.ClaimWindow <= 0 {
		return nil, fmt.Errorf("claim window must be positive, got %s", phases.ClaimWindow)
	}

	loc := anchor.Location
	if loc == nil {
		loc = time.UTC
	}

	// ISO weeks start on Monday; Sunday is the last day.
	day := (int(anchor.Weekday) + 6) % 7
	offset := time.Duration(day)*24*time.Hour +
		time.Duration(anchor.Hour)*time.Hour +
		time.Duration(anchor.Minute)*time.Minute

	return &Resolver{offset: offset, loc: loc, phases: phases}, nil
}

// WeekKeyFor returns the key of the week containing t
func (r *Resolver) WeekKeyFor(t time.Time) string {
	year, wk := t.In(r.loc).Add(-r.offset).ISOWeek()
	return Format(year, wk)
}

// Start returns the anchor instant that opens the given week
func (r *Resolver) Start(key string) (time.Time, error) {
	year, wk, err := Parse(key)
	if err != nil {
		return time.Time{}, err
	}
	return isoMonday(year, wk, r.loc).Add(r.offset), nil
}

// PhaseWindowsFor returns the phase boundaries of the given week
func (r *Resolver) PhaseWindowsFor(key string) (Windows, error) {
	start, err := r.Start(key)
	if err != nil {
		return Windows{}, err
	}
	return Windows{
		WeekKey:             key,
		Start:               start,
		End:                 start.Add(week),
		CodeLiveStart:       start.Add(r.phases.CodeLiveOffset),
		DrawAt:              start.Add(r.phases.DrawOffset),
		ClaimExpiryDuration: r.phases.ClaimWindow,
	}, nil
}

// Next returns the key of the week following key
func (r *Resolver) Next(key string) (string, error) {
	start, err := r.Start(key)
	if err != nil {
		return "", err
	}
	return r.WeekKeyFor(start.Add(week)), nil
}

// Prev returns the key of the week preceding key
func (r *Resolver) Prev(key string) (string, error) {
	start, err := r.Start(key)
	if err != nil {
		return "", err
	}
	return r.WeekKeyFor(start.Add(-week)), nil
}

// Format renders an ISO year and week as a key
func Format(year, wk int) string {
	return fmt.Sprintf("%04d-W%02d", year, wk)
}

// Parse splits a key into its ISO year and week. Only the canonical form
// produced by Format is accepted, so every week has exactly one key.
func Parse(key string) (year, wk int, err error) {
	if len(key) != 8 || key[4] != '-' || key[5] != 'W' {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	year, ok := digits(key[:4])
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	wk, ok = digits(key[6:])
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if year < 1 || wk < 1 || wk > weeksInYear(year) || Format(year, wk) != key {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return year, wk, nil
}

// digits parses an unsigned decimal made only of ASCII digits
func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// Valid reports whether key is a well-formed week key
func Valid(key string) bool {
	_, _, err := Parse(key)
	return err == nil
}

// isoMonday returns Monday 00:00 of the ISO week. January 4th always falls
// in week 1.
func isoMonday(year, wk int, loc *time.Location) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	back := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -back+(wk-1)*7)
}

func weeksInYear(year int) int {
	_, wk := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return wk
}
