// Package batch runs a fixed set of work items in rate-limited groups:
// items inside a group run concurrently, groups run one after another with a
// pause in between. Both exchange adapters and the market-data resolver use
// it to keep per-symbol fan-out under upstream rate limits.
package batch

import (
	"context"
	"sync"
	"time"
)

type Options struct {
	// Size is the number of items executed concurrently per group.
	Size int
	// Delay is the pause between consecutive groups. It is backpressure
	// against upstream throttling, not a correctness requirement.
	Delay time.Duration
}

const defaultSize = 10

// Run invokes fn for every index in [0, n), Size at a time. fn is expected
// to absorb its own failures (degrade-to-default contract); Run only fails
// when ctx is cancelled between groups.
func Run(ctx context.Context, n int, opts Options, fn func(ctx context.Context, i int)) error {
	size := opts.Size
	if size <= 0 {
		size = defaultSize
	}

	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				fn(ctx, i)
			}(i)
		}
		wg.Wait()

		if opts.Delay > 0 && end < n {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
	}
	return nil
}
