package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/zpam/categorizer/pkg/algorithm"
	"github.com/zpam/categorizer/pkg/config"
	"github.com/zpam/categorizer/pkg/datastore"
)

// Options controls context construction
type Options struct {
	Alpha float64

	// Retry of transient store errors during startup
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration

	Logger *slog.Logger
}

// DefaultOptions returns the startup defaults
func DefaultOptions() Options {
	return Options{
		Alpha:           DefaultAlpha,
		MaxTries:        5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      30 * time.Second,
	}
}

// Open builds a context over store and initializes it. The returned
// context is ready to classify; any failure is returned and no context is
// handed out.
func Open(ctx context.Context, alg algorithm.Algorithm, store datastore.Store, opts Options) (*Context, error) {
	c := NewContext(alg, store, opts.Alpha)

	_, err := retry(ctx, opts, "initialize", func() (struct{}, error) {
		return struct{}{}, c.Initialize(ctx)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FromConfig resolves the algorithm and store named by cfg, connects to
// the store and returns an initialized context. The store is closed when
// initialization fails.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Context, error) {
	kind, err := algorithm.ParseKind(cfg.Classifier.ClassifierType)
	if err != nil {
		return nil, &config.Error{Key: "classifier_type", Err: err}
	}
	source, err := datastore.ParseKind(cfg.Classifier.DataSource)
	if err != nil {
		return nil, &config.Error{Key: "data_source", Err: err}
	}
	alg, err := algorithm.New(kind)
	if err != nil {
		return nil, &config.Error{Key: "classifier_type", Err: err}
	}

	opts := OptionsFromConfig(cfg)
	opts.Logger = logger

	store, err := retry(ctx, opts, "open store", func() (datastore.Store, error) {
		return datastore.Open(ctx, source, cfg.Classifier.BasePath, cfg.Redis.StoreConfig())
	})
	if err != nil {
		return nil, err
	}

	c, err := Open(ctx, alg, store, opts)
	if err != nil {
		datastore.Close(store)
		return nil, err
	}

	if logger != nil {
		snap := c.Snapshot()
		logger.Info("classifier ready",
			"algorithm", kind,
			"data_source", source,
			"categories", len(snap.Categories),
			"vocabulary", snap.Vocabulary)
	}
	return c, nil
}

// OptionsFromConfig maps the classifier and init_retry sections
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Alpha = cfg.Classifier.Alpha
	if cfg.InitRetry.MaxTries > 0 {
		opts.MaxTries = uint(cfg.InitRetry.MaxTries)
	}
	if cfg.InitRetry.InitialIntervalMs > 0 {
		opts.InitialInterval = time.Duration(cfg.InitRetry.InitialIntervalMs) * time.Millisecond
	}
	if cfg.InitRetry.MaxIntervalMs > 0 {
		opts.MaxInterval = time.Duration(cfg.InitRetry.MaxIntervalMs) * time.Millisecond
	}
	if cfg.InitRetry.MaxElapsedMs > 0 {
		opts.MaxElapsed = time.Duration(cfg.InitRetry.MaxElapsedMs) * time.Millisecond
	}
	return opts
}

// retry runs op until it succeeds or fails with anything other than a
// transient store error
func retry[T any](ctx context.Context, opts Options, what string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		b.InitialInterval = opts.InitialInterval
	}
	if opts.MaxInterval > 0 {
		b.MaxInterval = opts.MaxInterval
	}

	retryOpts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if opts.MaxTries > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(opts.MaxTries))
	}
	if opts.MaxElapsed > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(opts.MaxElapsed))
	}
	if opts.Logger != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(func(err error, wait time.Duration) {
			opts.Logger.Warn("transient model store error, retrying",
				"step", what, "error", err, "wait", wait)
		}))
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil && !datastore.IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, retryOpts...)
	if err != nil {
		var zero T
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s interrupted: %w", what, err)
		}
		return zero, err
	}
	return res, nil
}
