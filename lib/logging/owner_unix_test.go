//go:build !windows

package logging

import (
	"path/filepath"
	"testing"
)

func TestLogIsOwnedByConfiguredUser(t *testing.T) {
	userName := "deadend"

	var gotName, gotOwner string
	changeOwnerOfFileFunc = func(name string, owner string) error {
		gotName, gotOwner = name, owner
		return nil
	}
	defer func() { changeOwnerOfFileFunc = changeOwnerOfFile }()

	lname := filepath.Join(t.TempDir(), "owned.log")
	logger := NewFileLogger(lname, Options{Owner: userName})
	logger.Printf("TestLogIsOwnedByConfiguredUser")
	CloseAllOpenFileLoggers()

	if gotOwner != userName {
		t.Errorf("Expected owner %q, got %q", userName, gotOwner)
	}
	if gotName != lname {
		t.Errorf("Expected chown of %q, got %q", lname, gotName)
	}
}

func TestBlankOwnerIsNoop(t *testing.T) {
	if err := changeOwnerOfFile("does-not-matter", ""); err != nil {
		t.Errorf("Blank owner should not error: %v", err)
	}
}
