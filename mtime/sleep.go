package mtime

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done, whichever comes first. It
// returns ctx.Err() if the wait was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
