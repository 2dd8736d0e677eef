package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultInterval   = 10 * time.Minute
	defaultBatchSize  = 500
	defaultMaxBatches = 100
)

// Config — параметры очистки.
type Config struct {
	Interval  time.Duration
	BatchSize int
	// MaxBatches ограничивает один проход, чтобы большой backlog
	// разбирался за несколько тиков, а не одной длинной серией запросов.
	MaxBatches int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = defaultMaxBatches
	}
	return c
}

// SweepResult — итог одного прохода.
type SweepResult struct {
	Deleted int
	Batches int
	// Truncated — проход остановлен по MaxBatches, просроченные ключи ещё остались.
	Truncated bool
}

// Option настраивает Sweeper.
type Option func(*Sweeper)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт метрики очистки.
func WithMetrics(m *metrics.IdempotencyMetrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// Sweeper периодически удаляет Idempotency-Key с истёкшим TTL. После
// удаления ключ можно переиспользовать для нового запроса.
type Sweeper struct {
	repo    domain.IdempotencyRepository
	cfg     Config
	metrics *metrics.IdempotencyMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewSweeper создаёт Sweeper.
func NewSweeper(repo domain.IdempotencyRepository, cfg Config, options ...Option) *Sweeper {
	s := &Sweeper{
		repo:   repo,
		cfg:    cfg.withDefaults(),
		logger: log.WithField("component", "idempotency-sweeper"),
		now:    time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Run выполняет проход сразу и затем каждые Interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.sweepAndLog(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	result, err := s.Sweep(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		s.metrics.RecordSweepError()
		s.logger.WithError(err).WithField("deleted", result.Deleted).Warn("idempotency cleanup failed")
		return
	}

	s.metrics.RecordSweep(result.Deleted)
	if result.Deleted == 0 {
		return
	}
	entry := s.logger.WithFields(log.Fields{"deleted": result.Deleted, "batches": result.Batches})
	if result.Truncated {
		entry.Warn("idempotency cleanup hit batch limit, backlog remains")
		return
	}
	entry.Info("idempotency cleanup completed")
}

// Sweep удаляет ключи, истёкшие к моменту начала прохода, порциями BatchSize.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	before := s.now().UTC()

	for result.Batches < s.cfg.MaxBatches {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		deleted, err := s.repo.Purge(ctx, before, s.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("purge idempotency keys: %w", err)
		}
		result.Batches++
		result.Deleted += deleted
		if deleted < s.cfg.BatchSize {
			return result, nil
		}
	}
	result.Truncated = true
	return result, nil
}
