package connector

import (
	"sync"
	"time"

	"github.com/faucetdb/tablekeeper/internal/model"
)

// maxTimings bounds the log on long-lived connectors; the oldest entries
// are dropped first.
const maxTimings = 4096

// TimingLog records how long each executed statement took. It is safe for
// concurrent use.
type TimingLog struct {
	mu      sync.Mutex
	entries []model.Timing
	limit   int
}

// Record appends one statement timing.
func (l *TimingLog) Record(stmt string, started time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	limit := l.limit
	if limit <= 0 {
		limit = maxTimings
	}
	if len(l.entries) >= limit {
		n := copy(l.entries, l.entries[len(l.entries)-limit+1:])
		l.entries = l.entries[:n]
	}
	l.entries = append(l.entries, model.Timing{
		Statement: stmt,
		Duration:  time.Since(started),
		At:        started,
	})
}

// Entries returns a copy of the recorded timings in execution order.
func (l *TimingLog) Entries() []model.Timing {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Timing, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset discards every recorded timing.
func (l *TimingLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
