package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/logger"
)

// ErrSkipped marks hosts left out after a failure in fail-fast mode.
var ErrSkipped = errors.New("skipped after an earlier failure")

// Options controls the worker pool.
type Options struct {
	// Parallelism is the number of hosts handled at once; values below 1 mean 1.
	Parallelism int
	// FailFast stops starting new hosts after the first failure.
	FailFast bool
}

// Result is the outcome of the operation on one host.
type Result[T any] struct {
	Host  string
	Value T
	Err   error
}

// Skipped reports whether the host was never attempted.
func (r *Result[T]) Skipped() bool {
	return errors.Is(r.Err, ErrSkipped)
}

// Op is an operation on a single host.
type Op[T any] func(ctx context.Context, h host.Host) (T, error)

// Run applies op to every host and returns the results in host order. The
// returned error combines the failures of all hosts and is nil when every
// host succeeded.
func Run[T any](ctx context.Context, hosts []host.Host, opts Options, op Op[T]) ([]Result[T], error) {
	results := make([]Result[T], len(hosts))

	limit := max(opts.Parallelism, 1)

	var (
		group  errgroup.Group
		failed atomic.Bool
	)

	group.SetLimit(limit)

	for i, h := range hosts {
		results[i].Host = h.Name()

		// Go blocks while the pool is full, so the flag reflects every host finished so far.
		if opts.FailFast && failed.Load() {
			results[i].Err = ErrSkipped

			continue
		}

		i, h := i, h

		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				failed.Store(true)

				return nil
			}

			value, err := op(ctx, h)

			results[i].Value = value
			results[i].Err = err

			if err != nil {
				failed.Store(true)
				logger.ErrorKV(ctx, "Operation failed", "host", h.Name(), "error", err)
			}

			return nil
		})

		if opts.FailFast && limit == 1 {
			// Sequential fail-fast needs the verdict of this host before the next one.
			_ = group.Wait()
		}
	}

	_ = group.Wait()

	return results, Combine(results)
}

// Combine merges the errors of failed hosts, ignoring skipped ones.
func Combine[T any](results []Result[T]) error {
	var combined error

	for i := range results {
		r := &results[i]
		if r.Err == nil || r.Skipped() {
			continue
		}

		combined = multierr.Append(combined, fmt.Errorf("%s: %w", r.Host, r.Err))
	}

	return combined
}
