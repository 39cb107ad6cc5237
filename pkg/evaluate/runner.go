package evaluate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zpam/categorizer/pkg/classifier"
	"github.com/zpam/categorizer/pkg/datastore"
)

// ContextFactory builds and initializes the classifier context owned by
// one worker
type ContextFactory func(ctx context.Context) (*classifier.Context, error)

// RunnerConfig configures a Runner
type RunnerConfig struct {
	Workers         int
	BatchSize       int
	GramSize        int
	DefaultCategory string

	// Observer must be safe for concurrent use
	Observer Observer
	Logger   *slog.Logger
}

// RunStats describes a finished run
type RunStats struct {
	Records int64
	Workers int
	Elapsed time.Duration
}

// Runner classifies a record stream with a pool of workers, each owning
// its own classifier context, and feeds the outcomes to an aggregator
type Runner struct {
	factory ContextFactory
	config  RunnerConfig
}

// NewRunner creates a runner. Non-positive sizes fall back to one worker
// and batches of one record.
func NewRunner(factory ContextFactory, cfg RunnerConfig) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{factory: factory, config: cfg}
}

// Run reads records from in and sends one outcome per record to agg.
// Every worker context is built before the first record is read, so a
// startup failure processes nothing. The first error from any worker
// stops the run.
func (r *Runner) Run(ctx context.Context, in io.Reader, agg Aggregator) (*RunStats, error) {
	start := time.Now()
	logger := r.config.Logger

	contexts, err := r.startWorkers(ctx)
	defer release(contexts)
	if err != nil {
		return nil, err
	}
	logger.Debug("evaluation workers ready", "workers", len(contexts))

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan []Record, len(contexts))
	outcomes := make(chan Outcome, len(contexts)*r.config.BatchSize)

	// Reader
	g.Go(func() error {
		defer close(batches)

		send := func(batch []Record) error {
			select {
			case batches <- batch:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		batch := make([]Record, 0, r.config.BatchSize)
		err := ReadRecords(in, func(rec Record) error {
			batch = append(batch, rec)
			if len(batch) < r.config.BatchSize {
				return nil
			}
			if err := send(batch); err != nil {
				return err
			}
			batch = make([]Record, 0, r.config.BatchSize)
			return nil
		})
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			return send(batch)
		}
		return nil
	})

	// Workers
	var wg sync.WaitGroup
	for i, c := range contexts {
		step := NewStep(c, r.config.GramSize, r.config.DefaultCategory).WithObserver(r.config.Observer)

		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for batch := range batches {
				for _, rec := range batch {
					o, err := step.Map(gctx, rec)
					if err != nil {
						return fmt.Errorf("worker %d: %w", i, err)
					}
					select {
					case outcomes <- o:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
			return nil
		})
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Aggregation
	var records atomic.Int64
	g.Go(func() error {
		for o := range outcomes {
			if err := agg.Add(o); err != nil {
				return fmt.Errorf("failed to aggregate outcome: %w", err)
			}
			records.Add(1)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &RunStats{
		Records: records.Load(),
		Workers: len(contexts),
		Elapsed: time.Since(start),
	}
	logger.Info("evaluation finished",
		"records", stats.Records,
		"workers", stats.Workers,
		"elapsed", stats.Elapsed)
	return stats, nil
}

func (r *Runner) startWorkers(ctx context.Context) ([]*classifier.Context, error) {
	contexts := make([]*classifier.Context, r.config.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range contexts {
		g.Go(func() error {
			c, err := r.factory(gctx)
			if err != nil {
				return fmt.Errorf("worker %d: failed to start classifier: %w", i, err)
			}
			contexts[i] = c
			return nil
		})
	}

	return contexts, g.Wait()
}

// release closes every distinct store held by contexts
func release(contexts []*classifier.Context) {
	closed := make(map[datastore.Store]bool)
	for _, c := range contexts {
		if c == nil {
			continue
		}
		store := c.Store()
		if closed[store] {
			continue
		}
		closed[store] = true
		datastore.Close(store)
	}
}
