// DEADEND - No-response TCP server
//
// Copyright (c) 2016-2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//

package osutils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileExists check if a file denoted by path exists, returning true or false.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// ReadPidFile returns the pid recorded in path, or 0 if the file is missing
// or does not hold a number.
func ReadPidFile(path string) int {
	dat, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(dat)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// WritePidFile records the current process id in path. It refuses to
// overwrite a pid file that belongs to another live process; a stale file is
// replaced.
func WritePidFile(path string) error {
	if pid := ReadPidFile(path); pid > 0 && pid != os.Getpid() {
		if running, _ := ProcessIsRunning(pid); running {
			return fmt.Errorf("pid file %s belongs to running process %d", path, pid)
		}
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// RemovePidFile deletes path if it still records the current process.
func RemovePidFile(path string) error {
	if ReadPidFile(path) != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}

// ProcessIsRunning tests to see if a process with PID is running.
func ProcessIsRunning(pid int) (bool, error) {
	return processIsRunning(pid)
}
