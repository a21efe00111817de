package growth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrive_MaxTicks(t *testing.T) {
	e := newTestEngine(t, seededConfig(1), nil)
	e.Initialize(sampleText)

	var seen []int
	ticks, err := Drive(context.Background(), e, DriveOptions{
		MaxTicks: 5,
		OnTick: func(r TickReport) error {
			seen = append(seen, r.Generation)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, ticks)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	assert.Equal(t, 5, e.Generation())
	assert.False(t, e.Running())
}

func TestDrive_StopsWhenFrontierEmpties(t *testing.T) {
	e := newTestEngine(t, seededConfig(1), nil)
	e.Initialize("AB")

	ticks, err := Drive(context.Background(), e, DriveOptions{MaxTicks: 100})
	require.NoError(t, err)
	assert.Equal(t, 2, ticks)
	assert.True(t, e.Done())
}

func TestDrive_Canceled(t *testing.T) {
	e := newTestEngine(t, seededConfig(1), nil)
	e.Initialize(sampleText)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ticks, err := Drive(ctx, e, DriveOptions{FPS: 60})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ticks)
	assert.Zero(t, e.Generation())
	assert.False(t, e.Running())
}

func TestDrive_OnTickError(t *testing.T) {
	e := newTestEngine(t, seededConfig(1), nil)
	e.Initialize(sampleText)

	errStop := errors.New("stop")
	ticks, err := Drive(context.Background(), e, DriveOptions{
		OnTick: func(TickReport) error { return errStop },
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 1, ticks)
	assert.False(t, e.Running())
}

func TestDrive_Paced(t *testing.T) {
	e := newTestEngine(t, seededConfig(1), nil)
	e.Initialize(sampleText)

	ticks, err := Drive(context.Background(), e, DriveOptions{FPS: 500, MaxTicks: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, ticks)
}

func TestDrive_EmptyText(t *testing.T) {
	e := newTestEngine(t, seededConfig(1), nil)
	e.Initialize("")

	ticks, err := Drive(context.Background(), e, DriveOptions{})
	require.NoError(t, err)
	assert.Zero(t, ticks)
}
