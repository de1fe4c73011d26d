package timeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	logx "tickline/pkg/logx"
)

func TestTickerConcurrentStartStop(t *testing.T) {
	clock := newManualClock()
	g := &globalTicker{
		factory:  clock.factory,
		onTick:   func() {},
		log:      logx.Nop(),
		stopWait: wait,
		publish:  func(string, any) {},
		interval: base,
	}

	for i := 0; i < 200; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); g.start() }()
		go func() { defer wg.Done(); g.stop() }()
		wg.Wait()
	}
	g.stop()

	require.False(t, g.running())
	require.Nil(t, clock.live())
}
