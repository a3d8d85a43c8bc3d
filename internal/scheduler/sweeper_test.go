package scheduler

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestRunOnce_SweepsEveryTarget(t *testing.T) {
	s := NewSweepScheduler("", quietLogger())
	calls := 0
	s.Register("idempotency", SweepFunc(func() int { calls++; return 3 }))
	s.Register("ratelimit", SweepFunc(func() int { calls++; return 0 }))
	s.Register("ignored", nil)

	removed := s.RunOnce()

	assert.Equal(t, 2, calls)
	assert.Equal(t, map[string]int{"idempotency": 3, "ratelimit": 0}, removed)
}

func TestStartStop(t *testing.T) {
	s := NewSweepScheduler("*/5 * * * *", quietLogger())

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Contains(t, s.GetStats(), "next_run")

	// second start is a no-op
	require.NoError(t, s.Start())

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewSweepScheduler("not a schedule", quietLogger())

	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}
