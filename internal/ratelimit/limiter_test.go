package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *recordingSleeper) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sleeps)
}

type countingSession struct {
	resets int
}

func (c *countingSession) ResetSession() { c.resets++ }

func TestLimiterWindowBound(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	session := &countingSession{}
	l := New(
		Config{PauseMin: 2, PauseMax: 6, DelayMin: time.Second, DelayMax: 3 * time.Second},
		WithSleeper(sleeper.Sleep),
		WithSession(session),
		WithRand(rand.New(rand.NewPCG(7, 11))),
		WithSite("bound.test"),
	)

	ctx := context.Background()
	var windows []int
	sinceLast := 0
	for range 200 {
		before := sleeper.count()
		require.NoError(t, l.Wait(ctx))
		if sleeper.count() > before {
			windows = append(windows, sinceLast)
			sinceLast = 1
			continue
		}
		sinceLast++
	}

	require.NotEmpty(t, windows)
	for _, w := range windows {
		require.GreaterOrEqual(t, w, 2)
		require.LessOrEqual(t, w, 6)
	}
	for _, d := range sleeper.sleeps {
		require.GreaterOrEqual(t, d, time.Second)
		require.LessOrEqual(t, d, 3*time.Second)
	}
	require.Equal(t, len(sleeper.sleeps), session.resets)
	require.Equal(t, 200, l.Count())
}

func TestLimiterRedrawsWindowAfterPause(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	l := New(
		Config{PauseMin: 1, PauseMax: 1, DelayMin: time.Second, DelayMax: 5 * time.Second},
		WithSleeper(sleeper.Sleep),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
	ctx := context.Background()

	limit, _ := l.Window()
	require.Equal(t, 1, limit)
	for range 20 {
		require.NoError(t, l.Wait(ctx))
	}
	// One request per window: every call after the first pauses.
	require.Equal(t, 19, sleeper.count())

	distinct := map[time.Duration]struct{}{}
	for _, d := range sleeper.sleeps {
		distinct[d] = struct{}{}
	}
	require.Greater(t, len(distinct), 1, "timeout should be re-drawn per window")
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	session := &countingSession{}
	l := New(Config{}, WithSleeper(sleeper.Sleep), WithSession(session))
	for range 50 {
		require.NoError(t, l.Wait(context.Background()))
	}
	require.Zero(t, sleeper.count())
	require.Zero(t, session.resets)
	require.Equal(t, 50, l.Count())
}

func TestLimiterZeroPauseRangeKeepsSession(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	session := &countingSession{}
	l := New(Config{DelayMin: time.Second, DelayMax: 2 * time.Second}, WithSleeper(sleeper.Sleep), WithSession(session))
	for range 10 {
		require.NoError(t, l.Wait(context.Background()))
	}
	require.Zero(t, sleeper.count())
	require.Zero(t, session.resets)
	require.Equal(t, 10, l.Count())
}

func TestLimiterPauseHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{PauseMin: 1, PauseMax: 1, DelayMin: time.Hour, DelayMax: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx))

	cancel()
	err := l.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, l.Count())
}

func TestLimiterMinIntervalFloor(t *testing.T) {
	t.Parallel()

	l := New(Config{MinInterval: 20 * time.Millisecond})
	start := time.Now()
	for range 3 {
		require.NoError(t, l.Wait(context.Background()))
	}
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "zero disables", cfg: Config{}},
		{name: "valid", cfg: Config{PauseMin: 2, PauseMax: 6, DelayMin: time.Second, DelayMax: 2 * time.Second}},
		{name: "inverted pause", cfg: Config{PauseMin: 6, PauseMax: 2}, wantErr: true},
		{name: "negative pause", cfg: Config{PauseMin: -1}, wantErr: true},
		{name: "inverted delay", cfg: Config{DelayMin: 2 * time.Second, DelayMax: time.Second}, wantErr: true},
		{name: "delay without pause", cfg: Config{DelayMin: time.Second, DelayMax: 2 * time.Second}, wantErr: true},
		{name: "negative interval", cfg: Config{MinInterval: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
