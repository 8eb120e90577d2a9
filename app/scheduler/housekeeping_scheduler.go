// Package scheduler runs periodic background maintenance
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kisaan-market/kisaan/config"
	"github.com/kisaan-market/kisaan/utils"
)

const (
	defaultHousekeepingInterval = time.Hour
	defaultCodeRetention        = 24 * time.Hour
	defaultSchedulerLog         = "data/housekeeping.log"
)

var purgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kisaan_housekeeping_purged_total",
	Help: "Rows removed by the housekeeping scheduler",
}, []string{"kind"})

// CodePurger deletes one-time codes issued before cutoff.
type CodePurger interface {
	DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SignupPurger is implemented by pending-signup stores that do not expire
// entries on their own.
type SignupPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// HousekeepingScheduler removes one-time codes long past their validity window
// and sweeps lapsed in-memory pending signups.
type HousekeepingScheduler struct {
	codes     CodePurger
	signups   SignupPurger
	clock     utils.Clock
	interval  time.Duration
	retention time.Duration

	logger  *log.Logger
	logFile io.Closer
}

func NewHousekeepingScheduler(
	codes CodePurger,
	signups SignupPurger,
	clock utils.Clock,
	cfg config.SchedulerConfig,
	logCfg config.LoggingConfig,
) *HousekeepingScheduler {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	s := &HousekeepingScheduler{
		codes:     codes,
		signups:   signups,
		clock:     clock,
		interval:  cfg.HousekeepingInterval,
		retention: cfg.CodeRetention,
	}
	if s.interval <= 0 {
		s.interval = defaultHousekeepingInterval
	}
	if s.retention <= 0 {
		s.retention = defaultCodeRetention
	}

	if err := s.initLogger(cfg.LogFilePath, logCfg); err != nil {
		s.logger = log.Default()
		s.logger.Printf("housekeeping: failed to initialize file logger: %v", err)
	}
	return s
}

// initLogger writes to stdout and a rotated file.
func (s *HousekeepingScheduler) initLogger(path string, logCfg config.LoggingConfig) error {
	if path == "" {
		path = defaultSchedulerLog
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logCfg.MaxSize,
		MaxBackups: logCfg.MaxBackups,
		MaxAge:     logCfg.MaxAge,
		Compress:   logCfg.Compress,
	}
	s.logFile = rotator
	s.logger = log.New(io.MultiWriter(os.Stdout, rotator), "housekeeping ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
	return nil
}

// Start launches the loop in a background goroutine and returns a stop function.
func (s *HousekeepingScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
		if s.logFile != nil {
			_ = s.logFile.Close()
		}
	}
}

// RunOnce performs a single purge pass. Failures are logged and retried on
// the next tick.
func (s *HousekeepingScheduler) RunOnce(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.retention)

	if s.codes != nil {
		n, err := s.codes.DeleteIssuedBefore(ctx, cutoff)
		if err != nil {
			s.logger.Printf(`{"level":"error","event":"purge_codes_failed","cutoff":"%s","error":"%v"}`, cutoff.Format(time.RFC3339), err)
		} else if n > 0 {
			purgedTotal.WithLabelValues("one_time_code").Add(float64(n))
			s.logger.Printf(`{"level":"info","event":"purged_codes","count":%d,"cutoff":"%s"}`, n, cutoff.Format(time.RFC3339))
		}
	}

	if s.signups != nil {
		n, err := s.signups.PurgeExpired(ctx)
		if err != nil {
			s.logger.Printf(`{"level":"error","event":"purge_signups_failed","error":"%v"}`, err)
		} else if n > 0 {
			purgedTotal.WithLabelValues("pending_signup").Add(float64(n))
			s.logger.Printf(`{"level":"info","event":"purged_signups","count":%d}`, n)
		}
	}
}
