package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSender struct {
	calls atomic.Int32
	err   error
}

func (c *countingSender) SendClosedReport(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestReportScheduler_RunsOnSchedule(t *testing.T) {
	sender := &countingSender{}
	s := NewReportScheduler(ReportSchedulerParams{
		Schedule: "* * * * * *",
		Reports:  sender,
		Logger:   zerolog.Nop(),
	})

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return sender.calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestReportScheduler_InvalidSchedule(t *testing.T) {
	s := NewReportScheduler(ReportSchedulerParams{
		Schedule: "not a schedule",
		Reports:  &countingSender{},
		Logger:   zerolog.Nop(),
	})

	assert.Error(t, s.Start())
}

func TestReportScheduler_FailedRunIsLogged(t *testing.T) {
	sender := &countingSender{err: errors.New("broker down")}
	s := NewReportScheduler(ReportSchedulerParams{
		Schedule: "0 0 0 1 1 *",
		Reports:  sender,
		Logger:   zerolog.Nop(),
	})

	assert.NotPanics(t, s.run)
	assert.Equal(t, int32(1), sender.calls.Load())
}
