package durable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/colorize-be/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// ErrStorageOperationFailed matches every error returned by Executor after a
// unit of work gave up.
var ErrStorageOperationFailed = errors.New("storage operation failed")

// transientMarkers identify connection-level failures worth retrying.
var transientMarkers = []string{
	"remoteprotocolerror",
	"connectionreseterror",
	"streamclosed",
	"connectionterminated",
	"connection reset",
	"broken pipe",
	"unexpected eof",
	"bad connection",
	"connection refused",
	"i/o timeout",
	"server closed the connection",
}

// OperationError reports a failed unit of work. It matches
// ErrStorageOperationFailed and unwraps to the last underlying error.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return target == ErrStorageOperationFailed
}

// Options tunes an Executor. Zero values fall back to defaults.
type Options struct {
	MaxRetries     int
	BackoffBase    time.Duration
	MaxConcurrency int64
	CallTimeout    time.Duration
}

// Executor runs blocking store calls on a bounded pool, retrying transient
// failures with linear backoff.
type Executor struct {
	maxRetries  int
	backoffBase time.Duration
	callTimeout time.Duration
	sem         *semaphore.Weighted
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewExecutor creates an Executor.
func NewExecutor(opts Options, logger *slog.Logger, m *metrics.Metrics) *Executor {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 250 * time.Millisecond
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 32
	}

	return &Executor{
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		callTimeout: opts.CallTimeout,
		sem:         semaphore.NewWeighted(opts.MaxConcurrency),
		sleep:       sleepContext,
		logger:      logger,
		metrics:     m,
	}
}

// Execute runs fn until it succeeds, fails with a non-transient error or
// exhausts the retries. Attempt n (1-based) that fails transiently is
// followed by a pause of n*BackoffBase.
func (e *Executor) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := e.attempt(ctx, fn)
		if err == nil {
			return nil
		}

		if attempt > e.maxRetries || !IsTransient(err) || ctx.Err() != nil {
			e.metrics.IncStoreFailure(op)
			e.logger.Error("Store operation failed",
				slog.String("op", op),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)
			return &OperationError{Op: op, Err: err}
		}

		delay := e.backoffBase * time.Duration(attempt)
		e.metrics.IncStoreRetry(op)
		e.logger.Warn("Transient store error, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		if serr := e.sleep(ctx, delay); serr != nil {
			return &OperationError{Op: op, Err: err}
		}
	}
}

func (e *Executor) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}
	return fn(ctx)
}

// Query is Execute for units of work that produce a value.
func Query[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// IsTransient reports whether err looks like a dropped or reset connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
