package state

import "github.com/signalsfoundry/edgeview/model"

// Buffer capacities for the bounded in-memory history.
const (
	SeriesCapacity      = 50
	DecisionLogCapacity = 50
)

// Series is a fixed-capacity FIFO of metric samples. Appending to a full
// series evicts the oldest sample. Samples keep arrival order; timestamps are
// never used to reorder them.
type Series struct {
	buf   []model.Sample
	start int
	n     int
}

// NewSeries returns an empty series holding at most capacity samples.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = SeriesCapacity
	}
	return &Series{buf: make([]model.Sample, capacity)}
}

// Append adds s at the tail, evicting from the head when full.
func (s *Series) Append(sample model.Sample) {
	capacity := len(s.buf)
	if s.n < capacity {
		s.buf[(s.start+s.n)%capacity] = sample
		s.n++
		return
	}
	s.buf[s.start] = sample
	s.start = (s.start + 1) % capacity
}

// Len returns the number of samples held.
func (s *Series) Len() int { return s.n }

// Cap returns the series capacity.
func (s *Series) Cap() int { return len(s.buf) }

// Samples returns a copy of the series, oldest first.
func (s *Series) Samples() []model.Sample {
	out := make([]model.Sample, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	return out
}

// Reset replaces the contents with samples, keeping only the newest ones
// that fit.
func (s *Series) Reset(samples []model.Sample) {
	s.start, s.n = 0, 0
	if over := len(samples) - len(s.buf); over > 0 {
		samples = samples[over:]
	}
	for _, sample := range samples {
		s.Append(sample)
	}
}

// prependDecision puts d in front of log and truncates the result to limit.
func prependDecision(log []model.Decision, d model.Decision, limit int) []model.Decision {
	n := len(log) + 1
	if n > limit {
		n = limit
	}
	out := make([]model.Decision, n)
	out[0] = d
	copy(out[1:], log)
	return out
}
