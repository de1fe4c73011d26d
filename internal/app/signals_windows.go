//go:build windows

package app

import "os"

// No user signals on windows; app state can only be changed through SetBackground.
var (
	backgroundSignal os.Signal
	foregroundSignal os.Signal
)
