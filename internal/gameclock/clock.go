// Package gameclock derives the simulated year from a persisted start timestamp.
// One simulated year passes every 60 real seconds.
package gameclock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	YearDuration     = 60 * time.Second
	DefaultEpochYear = 2024

	yearMillis = int64(YearDuration / time.Millisecond)
)

var (
	// ErrNotFound is returned by a Store that holds no state yet.
	ErrNotFound = errors.New("game clock state not found")
	// ErrCorrupt is returned by a Store whose persisted state cannot be decoded.
	ErrCorrupt = errors.New("game clock state corrupt")
)

// State is the persisted record. It is never modified after creation.
type State struct {
	EpochYear      int   `json:"epoch_year"`
	StartTimestamp int64 `json:"start_timestamp"`
}

func (s State) valid() bool {
	return s.EpochYear > 0 && s.StartTimestamp > 0
}

// Store persists the clock state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
}

// Reading is every derived value taken at a single instant.
type Reading struct {
	Year        int     `json:"year"`
	Progress    float64 `json:"progress"`
	SecondsLeft int     `json:"seconds_left"`
}

type Clock struct {
	store     Store
	now       clockwork.Clock
	log       *slog.Logger
	epochYear int
}

func New(store Store, now clockwork.Clock, logger *slog.Logger) *Clock {
	if now == nil {
		now = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{
		store:     store,
		now:       now,
		log:       logger,
		epochYear: DefaultEpochYear,
	}
}

// WithEpochYear sets the year used when a fresh state is created. Existing
// persisted state keeps its own epoch.
func (c *Clock) WithEpochYear(year int) *Clock {
	if year > 0 {
		c.epochYear = year
	}
	return c
}

// Initialize returns the persisted state, creating and saving it on first use.
// Unreadable state is replaced with a fresh one.
func (c *Clock) Initialize(ctx context.Context) (State, error) {
	st, err := c.store.Load(ctx)
	switch {
	case err == nil && st.valid():
		return st, nil
	case err == nil:
		c.log.Warn("game clock state invalid, recreating", "epoch_year", st.EpochYear, "start_timestamp", st.StartTimestamp)
	case errors.Is(err, ErrCorrupt):
		c.log.Warn("game clock state corrupt, recreating", "err", err)
	case errors.Is(err, ErrNotFound):
	default:
		return State{}, fmt.Errorf("load game clock: %w", err)
	}

	st = State{
		EpochYear:      c.epochYear,
		StartTimestamp: c.now.Now().UnixMilli(),
	}
	if err := c.store.Save(ctx, st); err != nil {
		return State{}, fmt.Errorf("save game clock: %w", err)
	}
	c.log.Info("game clock started", "epoch_year", st.EpochYear, "start_timestamp", st.StartTimestamp)
	return st, nil
}

func (c *Clock) CurrentYear(st State) int {
	return yearAt(st, c.elapsed(st))
}

// YearProgress is the percentage of the current simulated year already
// elapsed, in [0, 100).
func (c *Clock) YearProgress(st State) float64 {
	return progressAt(c.elapsed(st))
}

// SecondsToNextYear rounds up, so it reports 60 (not 0) exactly on a year
// boundary.
func (c *Clock) SecondsToNextYear(st State) int {
	return secondsLeftAt(c.elapsed(st))
}

func (c *Clock) Read(st State) Reading {
	elapsed := c.elapsed(st)
	return Reading{
		Year:        yearAt(st, elapsed),
		Progress:    progressAt(elapsed),
		SecondsLeft: secondsLeftAt(elapsed),
	}
}

func (c *Clock) elapsed(st State) int64 {
	return c.now.Now().UnixMilli() - st.StartTimestamp
}

func yearAt(st State, elapsed int64) int {
	return st.EpochYear + int(floorDiv(elapsed, yearMillis))
}

func progressAt(elapsed int64) float64 {
	return float64(floorMod(elapsed, yearMillis)) / float64(yearMillis) * 100
}

func secondsLeftAt(elapsed int64) int {
	left := yearMillis - floorMod(elapsed, yearMillis)
	return int((left + 999) / 1000)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
