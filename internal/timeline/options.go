package timeline

import (
	"time"

	"tickline/internal/eventbus"
	logx "tickline/pkg/logx"
)

// Dispatcher is the serialized execution context used for delivery.
// Submitted work must run one item at a time, in submission order.
type Dispatcher interface {
	Submit(fn func())
}

type Option func(*options)

type options struct {
	baseTick      time.Duration
	stopTimeout   time.Duration
	backlogWarn   int
	log           logx.Logger
	bus           eventbus.Bus
	dispatcher    Dispatcher
	tickerFactory TickerFactory
}

func WithBaseTick(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.baseTick = d
		}
	}
}

// WithStopTimeout bounds how long stopping the ticker waits for an in-flight pass.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stopTimeout = d
		}
	}
}

// WithBacklogWarn sets the high-water mark of the built-in dispatch queue.
func WithBacklogWarn(n int) Option { return func(o *options) { o.backlogWarn = n } }

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(o *options) { o.bus = bus } }

// WithDispatcher replaces the built-in dispatch queue. The registry does not
// own an injected dispatcher and never stops it.
func WithDispatcher(d Dispatcher) Option { return func(o *options) { o.dispatcher = d } }

func WithTickerFactory(f TickerFactory) Option {
	return func(o *options) {
		if f != nil {
			o.tickerFactory = f
		}
	}
}
