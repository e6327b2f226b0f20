package reports

import (
	"context"
	"time"
)

// StatusSource looks up a report's current state.
type StatusSource interface {
	ReportStatus(ctx context.Context, id string) (*Report, error)
}

// Poll checks the status of report id every interval until it is done.
// onUpdate, if non-nil, sees every status read. Polling stops at the
// first lookup error, which is returned, and when ctx ends.
func Poll(ctx context.Context, src StatusSource, id string, interval time.Duration, onUpdate func(*Report)) (*Report, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		r, err := src.ReportStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(r)
		}
		if r.Status.Done() {
			return r, nil
		}
	}
}
