package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestStandardLogging(t *testing.T) {
	lname := filepath.Join(t.TempDir(), "standard.log")
	logger := NewFileLogger(lname, Options{})
	defer CloseAllOpenFileLoggers()

	msg := "TestStandardLogging"
	logger.Print(msg)

	output, err := os.ReadFile(lname)
	if err != nil {
		t.Fatalf("Unable to read file: %v", err)
	}
	if !strings.Contains(string(output), msg) {
		t.Errorf("Expected '%s', got '%s'", msg, output)
	}
	re := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} TestStandardLogging`)
	if !re.Match(output) {
		t.Errorf("Expected default timestamp prefix, got '%s'", output)
	}
}

func TestCustomTimestampFormat(t *testing.T) {
	lname := filepath.Join(t.TempDir(), "micro.log")
	logger := NewFileLogger(lname, Options{TimestampFormat: "2006-01-02 15:04:05.000000"})
	defer CloseAllOpenFileLoggers()

	logger.Printf("TestCustomTimestampFormat")

	output, err := os.ReadFile(lname)
	if err != nil {
		t.Fatalf("Unable to read file: %v", err)
	}
	re := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{6} `)
	if !re.Match(output) {
		t.Errorf("Expected microsecond precision, got '%s'", output)
	}
}

func TestRollingLog(t *testing.T) {
	lname := filepath.Join(t.TempDir(), "rolling.log")
	rname := lname + ".1"

	logger := NewFileLogger(lname, Options{MaxSize: 1024})
	defer CloseAllOpenFileLoggers()

	msg := "TestRollingLog"
	for i := 0; i < 100; i++ {
		logger.Printf("%s-%d", msg, i)
	}

	// Test main log file
	output, err := os.ReadFile(lname)
	if err != nil {
		t.Errorf("Unable to read file: %v", err)
	}
	if !strings.Contains(string(output), msg) {
		t.Errorf("Expected '%s', got '%s'", msg, output)
	}
	if int64(len(output)) > 1024 {
		t.Errorf("Log file exceeded max size: %d bytes", len(output))
	}

	// Tested the older rolled file
	rolledOutput, err := os.ReadFile(rname)
	if err != nil {
		t.Errorf("Unable to read rolled file: %v", err)
	}
	if !strings.Contains(string(rolledOutput), msg) {
		t.Errorf("Expected '%s', got '%s'", msg, rolledOutput)
	}
}

func TestEchoWritesToBoth(t *testing.T) {
	lname := filepath.Join(t.TempDir(), "echo.log")
	echo := &bytes.Buffer{}
	logger := NewFileLogger(lname, Options{Echo: echo})
	defer CloseAllOpenFileLoggers()

	logger.Printf("TestEchoWritesToBoth")

	if !strings.Contains(echo.String(), "TestEchoWritesToBoth") {
		t.Errorf("Expected echo output, got '%s'", echo.String())
	}
	output, _ := os.ReadFile(lname)
	if !strings.Contains(string(output), "TestEchoWritesToBoth") {
		t.Errorf("Expected file output, got '%s'", output)
	}
}

func TestUnwritableLogFileFallsBackToDiscard(t *testing.T) {
	lname := filepath.Join(t.TempDir(), "missing-dir", "nope.log")
	echo := &bytes.Buffer{}
	logger := NewFileLogger(lname, Options{Echo: echo})

	logger.Printf("still works")

	if !strings.Contains(echo.String(), "still works") {
		t.Errorf("Expected echo output even without a log file, got '%s'", echo.String())
	}
}
