package growth

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// DriveOptions controls Drive.
type DriveOptions struct {
	// FPS caps the tick rate. Zero or negative runs unthrottled.
	FPS float64

	// MaxTicks stops the run after this many ticks. Zero means until the
	// frontier empties or ctx is done.
	MaxTicks int

	// OnTick is called after every tick. A non-nil error stops the run and
	// is returned wrapped.
	OnTick func(TickReport) error
}

// Drive starts e and calls Update once per frame until the frontier is empty,
// MaxTicks is reached, ctx is done or e is paused from elsewhere. The engine
// is paused again on return.
//
// Cancellation is only observed between ticks. Returns the number of ticks run
// and ctx.Err() when the run was cut short by ctx.
//
// Example:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	ticks, err := growth.Drive(ctx, engine, growth.DriveOptions{FPS: 30, MaxTicks: 500})
func Drive(ctx context.Context, e *Engine, opts DriveOptions) (int, error) {
	limit := rate.Inf
	if opts.FPS > 0 {
		limit = rate.Limit(opts.FPS)
	}
	limiter := rate.NewLimiter(limit, 1)

	e.Start()
	defer e.Pause()

	ticks := 0
	for !e.Done() {
		if opts.MaxTicks > 0 && ticks >= opts.MaxTicks {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ticks, ctxErr
			}
			return ticks, fmt.Errorf("growth: frame pacing: %w", err)
		}

		report, ok := e.UpdateContext(ctx)
		if !ok {
			break
		}
		ticks++

		if opts.OnTick != nil {
			if err := opts.OnTick(report); err != nil {
				return ticks, fmt.Errorf("growth: tick %d: %w", report.Generation, err)
			}
		}
	}
	return ticks, nil
}
