package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhtranq/folio/pkg/logger"
)

func TestMetricsAcquisitionAccounting(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 3; i++ {
		u := m.ConnectionAcquired(time.Duration(i) * time.Millisecond)
		u.Done()
	}

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.Acquisitions)
	assert.Equal(t, int64(3), s.Holds)
	assert.Equal(t, int64(0), s.Errors)
	assert.Equal(t, time.Duration(0), s.WaitMin)
	assert.Equal(t, 2*time.Millisecond, s.WaitMax)
	assert.Equal(t, time.Millisecond, s.WaitAvg)
	assert.GreaterOrEqual(t, s.HoldMin, time.Duration(0))
	assert.GreaterOrEqual(t, s.HoldMax, s.HoldMin)
}

func TestMetricsErrors(t *testing.T) {
	m := NewMetrics()
	m.ConnectionError()
	m.ConnectionError()

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Errors)
	assert.Equal(t, int64(0), s.Acquisitions)
}

func TestMetricsUsageDoneIdempotent(t *testing.T) {
	m := NewMetrics()
	u := m.ConnectionAcquired(0)
	u.Done()
	u.Done()

	require.Equal(t, int64(1), m.Snapshot().Holds)
}

func TestMetricsNegativeWaitClamped(t *testing.T) {
	m := NewMetrics()
	m.ConnectionAcquired(-time.Second).Done()

	s := m.Snapshot()
	assert.Equal(t, time.Duration(0), s.WaitMin)
	assert.Equal(t, time.Duration(0), s.WaitMax)
}

func TestMetricsLogSummaryDoesNotPanic(t *testing.T) {
	m := NewMetrics()
	m.ConnectionAcquired(time.Millisecond).Done()
	m.LogSummary(logger.NewNop())
}
