package surface

import "fmt"

// Metric selects how a raw loss is reported to the caller.
type Metric string

const (
	// Score reports the negated loss, so that higher is better.
	Score Metric = "score"
	// Loss reports the raw loss, so that lower is better.
	Loss Metric = "loss"
)

// ParseMetric converts a user supplied string into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case Score, Loss:
		return Metric(s), nil
	case "":
		return Score, nil
	default:
		return "", fmt.Errorf("unknown metric %q (want %q or %q)", s, Score, Loss)
	}
}

// Apply transforms a loss value according to the metric.
func (m Metric) Apply(loss float64) float64 {
	if m == Loss {
		return loss
	}
	return -loss
}

func (m Metric) String() string { return string(m) }
