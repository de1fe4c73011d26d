package timeline

import (
	"time"

	"tickline/internal/runtime/dispatch"
)

type Snapshot struct {
	BaseTick      time.Duration  `json:"base_tick"`
	TickerRunning bool           `json:"ticker_running"`
	Background    bool           `json:"background"`
	Ticks         uint64         `json:"ticks"`
	Fires         uint64         `json:"fires"`
	Dispatch      dispatch.Stats `json:"dispatch"`
	Timelines     []TimelineInfo `json:"timelines"`
}

type TimelineInfo struct {
	Period        time.Duration      `json:"period"`
	TicksPerFire  int64              `json:"ticks_per_fire"`
	Subscriptions []SubscriptionInfo `json:"subscriptions"`
}

type SubscriptionInfo struct {
	Key         string        `json:"key"`
	Accumulated time.Duration `json:"accumulated"`
	Running     bool          `json:"running"`
	Fired       bool          `json:"fired"`
	Targets     int           `json:"targets"`
	Forever     int           `json:"forever"`
}

// Subscription returns the info for (period, key), if present.
func (s Snapshot) Subscription(period time.Duration, key string) (SubscriptionInfo, bool) {
	for _, tl := range s.Timelines {
		if tl.Period != period {
			continue
		}
		for _, si := range tl.Subscriptions {
			if si.Key == key {
				return si, true
			}
		}
	}
	return SubscriptionInfo{}, false
}
