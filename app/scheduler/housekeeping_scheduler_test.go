package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisaan-market/kisaan/app/services"
	"github.com/kisaan-market/kisaan/config"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/utils"
)

type recordingPurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (p *recordingPurger) DeleteIssuedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.n, p.err
}

func (p *recordingPurger) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func newTestScheduler(t *testing.T, codes CodePurger, signups SignupPurger, clock utils.Clock) (*HousekeepingScheduler, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "logs", "housekeeping.log")
	s := NewHousekeepingScheduler(codes, signups, clock,
		config.SchedulerConfig{HousekeepingInterval: time.Hour, CodeRetention: 2 * time.Hour, LogFilePath: logPath},
		config.LoggingConfig{MaxSize: 1, MaxBackups: 1},
	)
	t.Cleanup(func() {
		if s.logFile != nil {
			_ = s.logFile.Close()
		}
	})
	return s, logPath
}

func TestHousekeepingRunOnce(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("PurgesCodesOlderThanRetention", func(t *testing.T) {
		clock := utils.NewManualClock(start)
		codes := &recordingPurger{n: 3}
		s, logPath := newTestScheduler(t, codes, nil, clock)

		s.RunOnce(context.Background())

		require.Len(t, codes.cutoffs, 1)
		assert.Equal(t, start.Add(-2*time.Hour), codes.cutoffs[0])

		raw, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"event":"purged_codes","count":3`)
	})

	t.Run("FailureIsLoggedNotFatal", func(t *testing.T) {
		codes := &recordingPurger{err: errors.New("connection refused")}
		s, logPath := newTestScheduler(t, codes, nil, utils.NewManualClock(start))

		s.RunOnce(context.Background())
		s.RunOnce(context.Background())

		assert.Len(t, codes.cutoffs, 2)
		raw, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(string(raw), "purge_codes_failed"))
	})

	t.Run("SweepsLapsedPendingSignups", func(t *testing.T) {
		clock := utils.NewManualClock(start)
		store := services.NewMemoryPendingSignupStore(clock)
		ctx := context.Background()

		for _, email := range []string{"a@gmail.com", "b@gmail.com"} {
			_, err := store.Put(ctx, &models.PendingSignup{Email: email}, time.Minute)
			require.NoError(t, err)
		}
		kept, err := store.Put(ctx, &models.PendingSignup{Email: "c@gmail.com"}, time.Hour)
		require.NoError(t, err)
		clock.Advance(2 * time.Minute)

		signups := &countingSignupPurger{inner: store}
		s, _ := newTestScheduler(t, nil, signups, clock)
		s.RunOnce(ctx)

		assert.Equal(t, 2, signups.removed)
		_, err = store.Get(ctx, kept)
		assert.NoError(t, err)
	})
}

type countingSignupPurger struct {
	inner   SignupPurger
	removed int
}

func (c *countingSignupPurger) PurgeExpired(ctx context.Context) (int, error) {
	n, err := c.inner.PurgeExpired(ctx)
	c.removed += n
	return n, err
}

func TestHousekeepingStartStop(t *testing.T) {
	codes := &recordingPurger{}
	s, _ := newTestScheduler(t, codes, nil, utils.NewManualClock(time.Now()))

	stop := s.Start(context.Background())
	require.Eventually(t, func() bool { return codes.calls() > 0 }, time.Second, 10*time.Millisecond)
	stop()
}
