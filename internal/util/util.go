package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a prefixed ULID. ULID is sortable, which keeps job and
// dispatch-log listings in creation order without an extra index.
func NewID(prefix string) string {
	t := time.Now().UTC()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewJobID() string      { return NewID("job") }
func NewDispatchID() string { return NewID("dl") }

func NowUTC() time.Time {
	return time.Now().UTC()
}

// SpreadSchedule returns n timestamps starting at base, each step apart.
// Used by the bulk helper that schedules one job per group with
// staggered offsets.
func SpreadSchedule(base time.Time, n int, step time.Duration) []time.Time {
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, base.Add(time.Duration(i)*step))
	}
	return out
}
