package timeline

import "time"

// Event types published on the event bus (see WithBus).
const (
	EventTickerStarted = "timeline.ticker.started"
	EventTickerStopped = "timeline.ticker.stopped"
	EventBucketCreated = "timeline.bucket.created"
	EventBucketPruned  = "timeline.bucket.pruned"
	EventFired         = "timeline.fired"
)

type TickerEvent struct {
	Interval time.Duration `json:"interval"`
}

type BucketEvent struct {
	Period time.Duration `json:"period"`
}

type FireEvent struct {
	Period  time.Duration `json:"period"`
	Key     string        `json:"key"`
	Targets int           `json:"targets"`
}
