// Package job hosts the background loops that keep stored data fresh:
// scheduled signal batches and chart image maintenance.
package job

import (
	"context"
	"time"
)

// every runs fn once immediately, then once per tick, until ctx is cancelled.
func every(ctx context.Context, tick time.Duration, fn func(context.Context)) {
	fn(ctx)

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}
