// Package simulate drives concurrent judges against the scoring service
// in-process and verifies the stored state and rankings afterwards.
package simulate

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Default simulation sizes.
const (
	DefaultCompetitions = 2
	DefaultEntries      = 20
	DefaultJudges       = 5
	DefaultCriteria     = 4
	DefaultConcurrency  = 16
	DefaultResubmits    = 1
	DefaultMaxScore     = 10
)

// Config sizes a simulation run.
type Config struct {
	Competitions int // competitions to generate
	Entries      int // submitted entries per competition
	Judges       int // active judges per competition
	Criteria     int // criteria per competition
	Concurrency  int // (entry, judge) pairs scored at once
	Resubmits    int // full rescoring rounds per pair after the first pass
	Seed         uint64
}

// DefaultConfig returns a small but contended run.
func DefaultConfig() Config {
	return Config{
		Competitions: DefaultCompetitions,
		Entries:      DefaultEntries,
		Judges:       DefaultJudges,
		Criteria:     DefaultCriteria,
		Concurrency:  DefaultConcurrency,
		Resubmits:    DefaultResubmits,
		Seed:         uint64(time.Now().UnixNano()),
	}
}

// Validate reports sizes that cannot produce a run.
func (c Config) Validate() error {
	switch {
	case c.Competitions < 1:
		return fmt.Errorf("%w: competitions must be at least 1", ErrInvalidConfig)
	case c.Entries < 1:
		return fmt.Errorf("%w: entries must be at least 1", ErrInvalidConfig)
	case c.Judges < 1:
		return fmt.Errorf("%w: judges must be at least 1", ErrInvalidConfig)
	case c.Criteria < 1:
		return fmt.Errorf("%w: criteria must be at least 1", ErrInvalidConfig)
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	case c.Resubmits < 0:
		return fmt.Errorf("%w: resubmits must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Pairs returns the number of (entry, judge) pairs the run scores.
func (c Config) Pairs() int {
	return c.Competitions * c.Entries * c.Judges
}

// ExpectedRows returns the number of score rows a finished run leaves.
func (c Config) ExpectedRows() int {
	return c.Pairs() * c.Criteria
}
