// DEADEND - No-response TCP server
//
// Copyright (c) 2014-2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//

//
// Logging requirements are very basic.  We roll our own rather than bring in
// a fatter dependency. All we require on top of Go's basic logging is very
// basic file rotation (one level), a custom timestamp format and an optional
// echo to the console when running interactively.
//
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sync"
	"time"
)

const (
	DefaultTimestampFormat = "2006-01-02 15:04:05"

	defaultMaxSize       = 10 * 1024 * 1024 // 10 MB
	defaultFlushInterval = 5 * time.Second
)

var (
	openLogFilesMu sync.Mutex
	openLogFiles   = make(map[string]*os.File)

	// Replaced in tests.
	changeOwnerOfFileFunc = changeOwnerOfFile
)

// Options controls how a file logger is set up. The zero value is usable.
type Options struct {
	MaxSize         int64
	Owner           string
	TimestampFormat string
	Echo            io.Writer
}

// Why a wrapper - see finalizer comment below.
type rollingFileWrapper struct {
	*rollingFile
}

type rollingFile struct {
	name                string
	owner               string
	maxSize             int64
	mu                  sync.Mutex
	currentFile         *os.File
	bytesSinceLastFlush int64
	currentSize         int64
	flusher             *flusher
}

type flusher struct {
	interval time.Duration
	stop     chan struct{}
}

func (f *flusher) run(rf *rollingFile) {
	tick := time.NewTicker(f.interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			rf.flush()
		case <-f.stop:
			return
		}
	}
}

func stopFlusher(rfw *rollingFileWrapper) {
	close(rfw.flusher.stop)
}

func newRollingFile(name string, owner string, maxSize int64) (*rollingFile, error) {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	rf := &rollingFile{
		name:    name,
		owner:   owner,
		maxSize: maxSize,
		flusher: &flusher{
			interval: defaultFlushInterval,
			stop:     make(chan struct{}),
		},
	}
	if err := rf.open(); err != nil {
		return nil, err
	}
	go rf.flusher.run(rf)
	return rf, nil
}

func (rf *rollingFile) Write(p []byte) (n int, err error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.currentSize+int64(len(p)) >= rf.maxSize {
		if err := rf.roll(); err != nil {
			return 0, err
		}
	}
	n, err = rf.currentFile.Write(p)
	rf.currentSize += int64(n)
	rf.bytesSinceLastFlush += int64(n)
	return
}

func (rf *rollingFile) flush() {
	rf.mu.Lock()
	if rf.bytesSinceLastFlush > 0 {
		rf.currentFile.Sync()
		rf.bytesSinceLastFlush = 0
	}
	rf.mu.Unlock()
}

func (rf *rollingFile) open() error {
	var err error
	rf.currentFile, err = openLogFile(rf.name)
	if err != nil {
		return err
	}
	if err := changeOwnerOfFileFunc(rf.name, rf.owner); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Unable to change owner of log file: %v\n", err)
	}
	finfo, err := rf.currentFile.Stat()
	if err != nil {
		return err
	}
	rf.currentSize = finfo.Size()
	return nil
}

func (rf *rollingFile) roll() error {
	closeLogFile(rf.name)
	archivedFile := rf.name + ".1"
	// Remove old archive and copy over existing
	os.Remove(archivedFile)
	os.Rename(rf.name, archivedFile)
	return rf.open()
}

func openLogFile(name string) (*os.File, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	openLogFilesMu.Lock()
	openLogFiles[name] = f
	openLogFilesMu.Unlock()
	return f, nil
}

func closeLogFile(name string) {
	openLogFilesMu.Lock()
	defer openLogFilesMu.Unlock()
	if f, ok := openLogFiles[name]; ok {
		f.Close()
		delete(openLogFiles, name)
	}
}

// timestampWriter prefixes every log line with the current time. log.Logger
// issues exactly one Write per line.
type timestampWriter struct {
	out    io.Writer
	format string
}

func (w *timestampWriter) Write(p []byte) (int, error) {
	line := make([]byte, 0, len(w.format)+1+len(p))
	line = time.Now().AppendFormat(line, w.format)
	line = append(line, ' ')
	line = append(line, p...)
	if _, err := w.out.Write(line); err != nil {
		return 0, err
	}
	return len(p), nil
}

func NewFileLogger(file string, opts Options) *log.Logger {
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = DefaultTimestampFormat
	}

	var out io.Writer
	rf, err := newRollingFile(file, opts.Owner, opts.MaxSize)
	if err == nil {
		// This trick ensures that the flusher goroutine does not keep
		// the returned wrapper object from being garbage collected. When it is
		// garbage collected, the finalizer stops the flusher goroutine, after
		// which rf can be collected.
		rfWrapper := &rollingFileWrapper{rf}
		runtime.SetFinalizer(rfWrapper, stopFlusher)
		out = rfWrapper
	} else {
		fmt.Fprintf(os.Stderr, "WARNING: Unable to set up log file: %v\n", err)
		out = io.Discard
	}
	if opts.Echo != nil {
		out = io.MultiWriter(out, opts.Echo)
	}
	return log.New(&timestampWriter{out: out, format: opts.TimestampFormat}, "", 0)
}

// Convenience method - really to just help with testing
func CloseAllOpenFileLoggers() {
	openLogFilesMu.Lock()
	defer openLogFilesMu.Unlock()
	for name, file := range openLogFiles {
		file.Close()
		delete(openLogFiles, name)
	}
}

func NewNilLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
