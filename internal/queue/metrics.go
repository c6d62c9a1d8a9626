package queue

import (
	"time"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

// recorder accumulates the metrics of one job. It is used by a single
// goroutine.
type recorder struct {
	m     types.Metrics
	start time.Time
	now   func() time.Time
}

func newRecorder(now func() time.Time) *recorder {
	return &recorder{start: now(), now: now}
}

// time runs fn and stores its duration in field, even when fn fails.
func (r *recorder) time(field *int64, fn func() error) error {
	t0 := r.now()
	defer func() { *field = r.now().Sub(t0).Milliseconds() }()
	return fn()
}

func (r *recorder) snapshot() types.Metrics {
	m := r.m
	m.TotalMs = r.now().Sub(r.start).Milliseconds()
	return m
}

// finish stamps the total and returns the final record.
func (r *recorder) finish() types.Metrics {
	r.m.TotalMs = r.now().Sub(r.start).Milliseconds()
	return r.m
}
