// Package timeline is a process-wide periodic tick dispatcher.
//
// A single background ticker advances every registered timeline by one base
// tick (16ms by default). A timeline is identified by its period; inside it,
// subscriptions are identified by caller-chosen keys. A subscription fires
// when the time accumulated since its last fire reaches the period, which
// means the real spacing between fires is the period rounded up to the next
// multiple of the base tick:
//
//	base tick 16ms, period 300ms -> fires every 19 ticks (304ms)
//
// Delivery targets are either bound to a lifecycle.Scope (removed when the
// scope ends) or registered forever (removed only explicitly). Callbacks run
// on a serialized dispatch context, never under the registry lock, so they may
// freely call back into the Registry.
package timeline
