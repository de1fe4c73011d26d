package timeline

import (
	"time"

	"tickline/internal/runtime/lifecycle"
)

// removal selects bindings to detach. Zero-valued criteria match anything;
// every public removal and every scope end goes through one of these.
type removal struct {
	period      time.Duration // 0 = every period
	key         string
	anyKey      bool
	scope       lifecycle.Scope
	observer    *Observer
	foreverOnly bool
	binding     *binding
}

func removeScopeKey(scope lifecycle.Scope, key string) removal {
	return removal{key: key, scope: scope}
}

func removeKeyObserver(key string, obs *Observer) removal {
	return removal{key: key, observer: obs}
}

func removeObserver(obs *Observer) removal {
	return removal{anyKey: true, observer: obs}
}

func removeForever(period time.Duration, key string, obs *Observer) removal {
	return removal{period: period, key: key, observer: obs, foreverOnly: true}
}

func removeBinding(b *binding) removal {
	return removal{period: b.period, key: b.key, binding: b}
}

func (q removal) matchesPeriod(p time.Duration) bool { return q.period == 0 || q.period == p }

func (q removal) matches(b *binding) bool {
	if q.binding != nil && b != q.binding {
		return false
	}
	if q.scope != nil && b.scope != q.scope {
		return false
	}
	if q.observer != nil && b.obs != q.observer {
		return false
	}
	if q.foreverOnly && !b.forever() {
		return false
	}
	return true
}
