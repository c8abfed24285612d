//go:build !windows

package executor

import "syscall"

// terminateSignal returns the graceful-shutdown signal used on unix
// platforms.
func terminateSignal() syscall.Signal {
	return syscall.SIGTERM
}
