package osutils_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/papercutsoftware/deadend/lib/osutils"
)

func TestPidFileLifecycle(t *testing.T) {
	// Arrange
	pidFile := filepath.Join(t.TempDir(), "deadend.pid")

	// Act
	if err := osutils.WritePidFile(pidFile); err != nil {
		t.Fatalf("Failed to write pid file: %v", err)
	}

	// Assert
	if !osutils.FileExists(pidFile) {
		t.Fatalf("Expected pid file to exist: %s", pidFile)
	}
	if got := osutils.ReadPidFile(pidFile); got != os.Getpid() {
		t.Errorf("Expected pid %d, got %d", os.Getpid(), got)
	}
	if err := osutils.RemovePidFile(pidFile); err != nil {
		t.Errorf("Failed to remove pid file: %v", err)
	}
	if osutils.FileExists(pidFile) {
		t.Error("Expected pid file to be removed")
	}
}

func TestWritePidFile_ReplacesStaleFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "stale.pid")
	// Pids this large are not handed out on any supported OS.
	if err := os.WriteFile(pidFile, []byte("999999999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := osutils.WritePidFile(pidFile); err != nil {
		t.Fatalf("Expected stale pid file to be replaced: %v", err)
	}
	if got := osutils.ReadPidFile(pidFile); got != os.Getpid() {
		t.Errorf("Expected pid %d, got %d", os.Getpid(), got)
	}
}

func TestWritePidFile_RefusesLiveOwner(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "live.pid")
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getppid())), 0644); err != nil {
		t.Fatal(err)
	}

	if err := osutils.WritePidFile(pidFile); err == nil {
		t.Error("Expected refusal to overwrite a live process's pid file")
	}
}

func TestRemovePidFile_LeavesOtherOwners(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "other.pid")
	if err := os.WriteFile(pidFile, []byte("12345\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := osutils.RemovePidFile(pidFile); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !osutils.FileExists(pidFile) {
		t.Error("Pid file of another process should be left alone")
	}
}

func TestReadPidFile_Garbage(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "garbage.pid")
	os.WriteFile(pidFile, []byte("not a pid"), 0644)

	if got := osutils.ReadPidFile(pidFile); got != 0 {
		t.Errorf("Expected 0 for garbage, got %d", got)
	}
	if got := osutils.ReadPidFile(pidFile + ".missing"); got != 0 {
		t.Errorf("Expected 0 for missing file, got %d", got)
	}
}

func TestProcessIsRunning_Self(t *testing.T) {
	running, err := osutils.ProcessIsRunning(os.Getpid())
	if err != nil || !running {
		t.Errorf("Expected current process to be running, got %v %v", running, err)
	}
}
