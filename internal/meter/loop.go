package meter

import (
	"context"
	"log/slog"
	"time"
)

// Source produces one Levels map per tick.
type Source interface {
	Sample() Levels
}

// Loop samples a Source at a fixed period and publishes the result.
type Loop struct {
	source      Source
	broadcaster *Broadcaster
	interval    time.Duration
}

func NewLoop(source Source, broadcaster *Broadcaster, interval time.Duration) *Loop {
	return &Loop{
		source:      source,
		broadcaster: broadcaster,
		interval:    interval,
	}
}

// Run ticks until ctx is cancelled. It is independent of how fast
// subscribers consume.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	slog.Debug("Meter loop started", "interval", l.interval)
	defer slog.Debug("Meter loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			levels := l.source.Sample()
			// a tick may race with cancellation; never publish after it
			if ctx.Err() != nil {
				return
			}
			l.broadcaster.Publish(levels)
		}
	}
}
