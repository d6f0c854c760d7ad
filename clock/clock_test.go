package clock_test

import (
	"testing"
	"time"

	"github.com/lateralwatch/engine/clock"
	"github.com/stretchr/testify/require"
)

func TestFrozenNowIsStable(t *testing.T) {
	at := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	c := clock.NewFrozen(at)

	require.Equal(t, at, c.Now())
	require.Equal(t, at, c.Now())
}

func TestFrozenAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	c := clock.NewFrozen(start)

	c.Advance(90 * time.Minute)

	require.Equal(t, start.Add(90*time.Minute), c.Now())
}

func TestFrozenSet(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	target := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	c.Set(target)

	require.Equal(t, target, c.Now())
}

func TestRealNowAdvances(t *testing.T) {
	var c clock.Real
	first := c.Now()
	time.Sleep(time.Millisecond)
	second := c.Now()

	require.True(t, second.After(first) || second.Equal(first))
}
