package osutils

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func processIsRunning(pid int) (bool, error) {
	const stillActive = uint32(259)

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		// Assume process does not exist so not running
		return false, nil
	}
	defer windows.CloseHandle(handle)

	var ec uint32
	if err := windows.GetExitCodeProcess(handle, &ec); err != nil {
		return false, fmt.Errorf("GetExitCodeProcess Error: %v", err)
	}
	return ec == stillActive, nil
}
