package transition

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is how often the scheduler scans
const DefaultInterval = 5 * time.Minute

// Scanner runs one detection pass
type Scanner interface {
	Scan(ctx context.Context) ScanResult
}

// cronLogger routes cron's own logging into slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// Scheduler drives a Scanner on a fixed interval and on demand
type Scheduler struct {
	mu       sync.Mutex
	scanner  Scanner
	interval time.Duration
	cron     *cron.Cron
	running  bool
	logger   *slog.Logger
}

// SchedulerOption represents a configuration option for the Scheduler
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger for the scheduler
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInterval sets the scan interval. cron rounds it to whole seconds.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// NewScheduler creates a stopped scheduler
func NewScheduler(scanner Scanner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		scanner:  scanner,
		interval: DefaultInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	logger := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(s.run))
	return s
}

func (s *Scheduler) run() {
	result := s.scanner.Scan(context.Background())
	if len(result.Created) > 0 || len(result.AutoConfirmed) > 0 {
		s.logger.Info("scheduled scan", "created", len(result.Created), "auto_confirmed", len(result.AutoConfirmed))
	}
}

// Start begins periodic scanning. Starting twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("transition scheduler started", "interval", s.interval)
}

// Stop halts periodic scanning and waits for a running scan to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("transition scheduler stopped")
}

// TriggerNow scans immediately, for example when a view becomes active
func (s *Scheduler) TriggerNow(ctx context.Context) ScanResult {
	return s.scanner.Scan(ctx)
}
