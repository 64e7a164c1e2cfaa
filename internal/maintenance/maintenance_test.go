package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meowstore/pkg/config"
)

type countingCompactor struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (c *countingCompactor) Compact() error {
	c.calls.Add(1)
	if c.block != nil {
		<-c.block
	}
	return c.err
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New("every tuesday", &countingCompactor{})
	require.Error(t, err)
}

func TestRunNow(t *testing.T) {
	c := &countingCompactor{}
	m, err := New("0 3 * * *", c)
	require.NoError(t, err)

	require.NoError(t, m.RunNow())
	assert.Equal(t, int32(1), c.calls.Load())
	assert.Equal(t, 1, m.Runs())

	c.err = errors.New("disk on fire")
	require.ErrorIs(t, m.RunNow(), c.err)
	assert.Equal(t, 2, m.Runs())
}

func TestRunNowIsExclusive(t *testing.T) {
	c := &countingCompactor{block: make(chan struct{})}
	m, err := New("0 3 * * *", c)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.RunNow() }()
	require.Eventually(t, func() bool { return c.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.ErrorIs(t, m.RunNow(), ErrRunning)
	close(c.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestScheduleLoopRunsOnTick(t *testing.T) {
	c := &countingCompactor{}
	m, err := New("0 3 * * *", c)
	require.NoError(t, err)
	m.nextTick = func(string, time.Time) (time.Time, error) {
		return time.Now().Add(5 * time.Millisecond), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		m.scheduleLoop(ctx)
		close(stopped)
	}()
	require.Eventually(t, func() bool { return m.Runs() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-stopped
}

func TestStartDisabled(t *testing.T) {
	c := &countingCompactor{}
	cancel, err := Start(context.Background(), config.MaintenanceConfig{Enabled: false}, c)
	require.NoError(t, err)
	cancel()

	_, err = Start(context.Background(), config.MaintenanceConfig{Enabled: true, Cron: "nope"}, c)
	require.Error(t, err)
}
