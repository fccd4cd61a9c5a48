//go:build !windows

package osutils

import (
	"errors"

	"golang.org/x/sys/unix"
)

func processIsRunning(pid int) (bool, error) {
	// Send zero signal to test. EPERM still means it exists.
	err := unix.Kill(pid, 0)
	if err == nil || errors.Is(err, unix.EPERM) {
		return true, nil
	}
	return false, nil
}
