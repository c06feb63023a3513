package state

import (
	"context"
	"time"
)

// minAutoSaveInterval is the floor spec §4.6 sets: "configurable
// interval (>=5s)".
var minAutoSaveInterval = 5 * time.Second

// AutoSave runs save on every tick of interval (clamped to the 5s
// floor) until ctx is canceled. Errors from save are reported through
// onError rather than stopping the loop — spec §7: "the engine
// continues scanning if auto-save fails, logging the failure through
// the error callback."
func (m *Manager) AutoSave(ctx context.Context, interval time.Duration, save func() error, onError func(error)) {
	if interval < minAutoSaveInterval {
		interval = minAutoSaveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := save(); err != nil {
				m.logger().WithError(err).Warn("auto-save failed")
				if onError != nil {
					onError(err)
				}
			}
		}
	}
}
