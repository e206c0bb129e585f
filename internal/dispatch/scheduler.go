package dispatch

import (
	"context"
	"errors"
	"time"
)

// Run triggers a cycle immediately and then every interval until ctx is
// cancelled. A tick that arrives while a cycle is still running is dropped.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("dispatch interval must be positive")
	}

	d.logger.Info("dispatcher started", "interval", interval, "radius", d.opts.Radius)
	d.metrics.DispatcherRunning.Set(1)
	defer d.metrics.DispatcherRunning.Set(0)

	ticker := d.opts.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			d.trigger(ctx)
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

func (d *Dispatcher) trigger(ctx context.Context) {
	if _, err := d.RunCycle(ctx); errors.Is(err, ErrCycleInProgress) {
		d.logger.Warn("previous dispatch cycle still running, skipping tick")
	}
}
