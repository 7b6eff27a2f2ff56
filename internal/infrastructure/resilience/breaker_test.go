package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Settings{TripAfter: 3, Cooldown: time.Hour})

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return errBoom })
		require.ErrorIs(t, err, errBoom)
	}

	assert.Equal(t, Open, b.State())
	err := b.Do(func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := New("test", Settings{TripAfter: 3})

	b.Do(func() error { return errBoom })
	b.Do(func() error { return errBoom })
	require.NoError(t, b.Do(func() error { return nil }))
	b.Do(func() error { return errBoom })
	b.Do(func() error { return errBoom })

	assert.Equal(t, Closed, b.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	var transitions []State
	b := New("test", Settings{
		TripAfter: 1,
		Cooldown:  10 * time.Millisecond,
		MaxProbes: 1,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	require.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	require.Equal(t, Open, b.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, []State{Open, HalfOpen, Closed}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("test", Settings{TripAfter: 1, Cooldown: 10 * time.Millisecond})

	b.Do(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	b.Do(func() error { return errBoom })
	assert.Equal(t, Open, b.State())
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b := New("test", Settings{TripAfter: 1, Cooldown: 5 * time.Millisecond, MaxProbes: 1})

	b.Do(func() error { return errBoom })
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	blocked := make(chan struct{})
	release := make(chan struct{})
	go b.Do(func() error {
		close(blocked)
		<-release
		return nil
	})
	<-blocked

	err := b.Do(func() error { return nil })
	assert.ErrorIs(t, err, ErrThrottled)
	close(release)
}
