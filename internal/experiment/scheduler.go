package experiment

import (
	"context"
	"time"
)

// PollFunc runs one poll and reports whether polling is finished.
type PollFunc func(ctx context.Context) (done bool, err error)

// Scheduler invokes poll every interval until it reports done, until passes
// or ctx is cancelled. Cancellation returns ctx.Err().
type Scheduler interface {
	SchedulePoll(ctx context.Context, interval time.Duration, until time.Time, poll PollFunc) error
}

// TickerScheduler polls on a time.Ticker.
type TickerScheduler struct {
	Now func() time.Time
}

func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{Now: time.Now}
}

func (s *TickerScheduler) SchedulePoll(ctx context.Context, interval time.Duration, until time.Time, poll PollFunc) error {
	now := s.Now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !now().Before(until) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := poll(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}
