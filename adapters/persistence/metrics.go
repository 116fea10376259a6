package persistence

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minhtranq/folio/pkg/logger"
)

// Metrics tracks connection pool behaviour: how long callers waited for
// a connection, how long they held it, and how often acquisition failed.
// Recording is best-effort bookkeeping and never returns an error.
type Metrics struct {
	mu sync.Mutex

	acquisitions int64
	errors       int64

	waitMin, waitMax, waitTotal time.Duration
	holds                       int64
	holdMin, holdMax, holdTotal time.Duration
}

// Usage tracks one connection from acquisition to release. Done is safe
// to call more than once; only the first call records the hold time.
type Usage struct {
	m     *Metrics
	start time.Time
	once  sync.Once
}

type Snapshot struct {
	Acquisitions int64
	Errors       int64
	Holds        int64
	WaitMin      time.Duration
	WaitAvg      time.Duration
	WaitMax      time.Duration
	HoldMin      time.Duration
	HoldAvg      time.Duration
	HoldMax      time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// ConnectionAcquired records the time a caller waited for a connection
// and returns the usage handle tracking the hold that follows.
func (m *Metrics) ConnectionAcquired(wait time.Duration) *Usage {
	if wait < 0 {
		wait = 0
	}
	m.mu.Lock()
	if m.acquisitions == 0 || wait < m.waitMin {
		m.waitMin = wait
	}
	if wait > m.waitMax {
		m.waitMax = wait
	}
	m.waitTotal += wait
	m.acquisitions++
	m.mu.Unlock()

	return &Usage{m: m, start: time.Now()}
}

// ConnectionError counts a failed acquisition.
func (m *Metrics) ConnectionError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func (u *Usage) Done() {
	u.once.Do(func() {
		hold := time.Since(u.start)
		if hold < 0 {
			hold = 0
		}
		m := u.m
		m.mu.Lock()
		if m.holds == 0 || hold < m.holdMin {
			m.holdMin = hold
		}
		if hold > m.holdMax {
			m.holdMax = hold
		}
		m.holdTotal += hold
		m.holds++
		m.mu.Unlock()
	})
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Acquisitions: m.acquisitions,
		Errors:       m.errors,
		Holds:        m.holds,
		WaitMin:      m.waitMin,
		WaitMax:      m.waitMax,
		HoldMin:      m.holdMin,
		HoldMax:      m.holdMax,
	}
	if m.acquisitions > 0 {
		s.WaitAvg = m.waitTotal / time.Duration(m.acquisitions)
	}
	if m.holds > 0 {
		s.HoldAvg = m.holdTotal / time.Duration(m.holds)
	}
	return s
}

// LogSummary emits a human-readable digest of the pool counters.
func (m *Metrics) LogSummary(log logger.Logger) {
	s := m.Snapshot()
	log.Info("connection pool summary",
		zap.Int64("acquisitions", s.Acquisitions),
		zap.Int64("errors", s.Errors),
		zap.Duration("wait_min", s.WaitMin),
		zap.Duration("wait_avg", s.WaitAvg),
		zap.Duration("wait_max", s.WaitMax),
		zap.Duration("hold_min", s.HoldMin),
		zap.Duration("hold_avg", s.HoldAvg),
		zap.Duration("hold_max", s.HoldMax),
	)
}
