package infra

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

func runJanitor(ctx context.Context, clk clock.Clock, every time.Duration, cleanup func()) {
	if every <= 0 {
		return
	}

	t := clk.Ticker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cleanup()
			}
		}
	}()
}
