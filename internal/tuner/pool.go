// Package tuner allocates demodulators from a fixed set of network tuner
// appliances. One capture holds one tuner at a time.
package tuner

import (
	"sync"

	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/metrics"
)

// Pool partitions the known tuners into available and leased, guarded by
// one mutex. Acquisition is non-blocking: callers that get nothing abandon
// the capture rather than wait out another recording.
type Pool struct {
	mu        sync.Mutex
	available []database.TunerInfo
	leased    []database.TunerInfo
}

func NewPool(tuners []database.TunerInfo) *Pool {
	p := &Pool{}
	p.available = append(p.available, tuners...)
	metrics.TunersAvailable.Set(float64(len(p.available)))
	return p
}

// Acquire leases the first available tuner. The second return is false when
// every tuner is busy.
func (p *Pool) Acquire() (database.TunerInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.available) == 0 {
		return database.TunerInfo{}, false
	}
	t := p.available[0]
	p.available = p.available[1:]
	p.leased = append(p.leased, t)
	metrics.TunersAvailable.Set(float64(len(p.available)))
	return t, true
}

// Release returns a leased tuner to the pool. Releasing a tuner that is not
// currently leased is a no-op, so a double release cannot corrupt the
// partition.
func (p *Pool) Release(t database.TunerInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, leased := range p.leased {
		if leased == t {
			p.leased = append(p.leased[:i], p.leased[i+1:]...)
			p.available = append(p.available, t)
			metrics.TunersAvailable.Set(float64(len(p.available)))
			return
		}
	}
}

// Counts reports the current partition sizes.
func (p *Pool) Counts() (available, leased int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available), len(p.leased)
}
