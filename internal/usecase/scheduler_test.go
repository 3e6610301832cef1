package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedHighlights/internal/domain"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

type countingRunner struct {
	triggers []time.Time
	err      error
}

func (r *countingRunner) Run(_ context.Context, now time.Time) (Report, error) {
	r.triggers = append(r.triggers, now)
	return Report{RunID: "r", Status: domain.RunPublished}, r.err
}

func TestSchedulerRunsPipelineOnTrigger(t *testing.T) {
	t.Parallel()

	driver := &manualDriver{}
	runner := &countingRunner{err: errors.New("boom")}
	s := NewScheduler(driver, runner, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)

	first := time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)
	driver.job(first)
	driver.job(first.AddDate(0, 0, 7))
	assert.Equal(t, []time.Time{first, first.AddDate(0, 0, 7)}, runner.triggers, "a failed run does not stop the schedule")

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutDriver(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, &countingRunner{}, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
