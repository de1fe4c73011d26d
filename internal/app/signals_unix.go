//go:build !windows

package app

import (
	"os"
	"syscall"
)

var (
	backgroundSignal os.Signal = syscall.SIGUSR1
	foregroundSignal os.Signal = syscall.SIGUSR2
)
