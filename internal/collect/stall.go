package collect

import "log/slog"

// DefaultPatience is the number of consecutive rounds without new rows
// tolerated before a collection gives up.
const DefaultPatience = 3

// StallTracker counts consecutive collection rounds that added no rows.
type StallTracker struct {
	patience   int
	staleCount int
	history    []int
}

// NewStallTracker returns a tracker that reports a stall after patience
// empty rounds. A non-positive patience selects DefaultPatience.
func NewStallTracker(patience int) *StallTracker {
	if patience <= 0 {
		patience = DefaultPatience
	}
	return &StallTracker{patience: patience}
}

// Update records the number of rows a round added and returns true once the
// patience is exhausted.
func (s *StallTracker) Update(added int) bool {
	s.history = append(s.history, added)

	if added > 0 {
		s.staleCount = 0
		return false
	}

	s.staleCount++
	slog.Debug("Round added no rows",
		"stale_count", s.staleCount,
		"patience", s.patience,
	)
	return s.staleCount >= s.patience
}

// StaleCount returns the current number of consecutive empty rounds.
func (s *StallTracker) StaleCount() int {
	return s.staleCount
}

// History returns the rows added per round.
func (s *StallTracker) History() []int {
	return append([]int(nil), s.history...)
}
