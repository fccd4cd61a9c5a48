// DEADEND - No-response TCP server
//
// Copyright (c) 2014-2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//

package main

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"runtime/debug"
	"time"
)

type LastCrash struct {
	Timestamp  time.Time
	CrashCount int
}

const maxCrashCount = 5

var (
	lastPanicFile  = "deadend.lastcrash"
	debounceFactor = 1 * time.Second
)

// handlePanic is deferred by every serving goroutine. A crash takes all
// listeners down and starts them again, unless we have been crashing too
// often in the last hour.
func handlePanic(ctx *runContext) {
	err := recover()
	if err == nil {
		// did not crash. return without doing anything
		return
	}

	logger, closeLog := panicLogger(ctx)
	logger.Printf("listener crashed: %v\n%s", err, debug.Stack())
	ctx.logger.Printf("ERROR: Listener crashed: %v", err)

	if debounce() {
		logger.Printf("crashed too many times. bailing...")
		closeLog()
		os.Exit(2)
	}

	go func() {
		defer closeLog()
		logger.Printf("restarting all listeners")
		doStop(ctx)
		if err := doStart(ctx); err != nil {
			logger.Printf("restart failed: %v", err)
			ctx.logger.Printf("ERROR: Unable to restart after crash: %v", err)
		}
	}()
}

func panicLogger(ctx *runContext) (*log.Logger, func()) {
	crashlog := ctx.conf.ServiceConfig.CrashLogFile
	if crashlog == "" {
		crashlog = "crashlog.log"
	}

	f, err := os.OpenFile(crashlog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return log.New(os.Stderr, "", log.Ldate|log.Ltime), func() {}
	}

	return log.New(f, "", log.Ldate|log.Ltime), func() { f.Close() }
}

// debounce reports whether we should give up. Each crash inside the hour
// waits a little longer before the restart.
func debounce() bool {
	now := time.Now()

	lc := readLastPanic()
	if lc == nil || time.Since(lc.Timestamp) > time.Hour {
		lc = &LastCrash{
			Timestamp:  now,
			CrashCount: 1,
		}
		_ = writeLastPanic(lc)
		return false
	}

	if lc.CrashCount < maxCrashCount {
		lc.Timestamp = now
		lc.CrashCount = lc.CrashCount + 1

		time.Sleep(debounceFactor * time.Duration(lc.CrashCount))
		_ = writeLastPanic(lc)
		return false
	}

	return true
}

func readLastPanic() *LastCrash {
	f, err := os.Open(lastPanicFile)
	if err != nil {
		return nil
	}
	defer f.Close()

	l := &LastCrash{}
	if err := json.NewDecoder(f).Decode(l); err != nil {
		return nil
	}
	return l
}

func writeLastPanic(lc *LastCrash) error {
	f, err := os.OpenFile(lastPanicFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.New("failed to write lastcrash file")
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(lc)
}
