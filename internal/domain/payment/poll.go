package payment

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// DefaultPollInterval is the period between status checks.
const DefaultPollInterval = 5 * time.Second

// Poll checks the status of charge id immediately and then every interval
// until it reaches a terminal status or ctx is done. onStatus, when not
// nil, observes every successfully fetched status. Failed checks are logged
// and retried on the next tick.
func Poll(ctx context.Context, gw Gateway, id string, interval time.Duration, onStatus func(Status)) (Status, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	lg := zctx.From(ctx).With(zap.String("pix_id", id))

	check := func() (Status, bool) {
		st, err := gw.Status(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				lg.Warn("Check payment status", zap.Error(err))
			}
			return "", false
		}
		if onStatus != nil {
			onStatus(st)
		}
		return st, st.Terminal()
	}

	if st, done := check(); done {
		return st, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if st, done := check(); done {
				return st, nil
			}
		}
	}
}
