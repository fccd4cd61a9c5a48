// DEADEND - No-response TCP server
//
// Copyright (c) 2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//
package main

import (
	"fmt"
	"log"

	"github.com/robfig/cron"

	"github.com/papercutsoftware/deadend/lib/tarpit"
	"github.com/papercutsoftware/deadend/service/config"
)

type statsSource interface {
	Stats() tarpit.Stats
}

func statusLine(st tarpit.Stats) string {
	return fmt.Sprintf("%s: holding %d connections on %s (accepted: %d, released: %d)",
		st.Name, st.Held, st.Address, st.Accepted, st.Released)
}

func reportStatus(servers []*tarpit.Server, logger *log.Logger) {
	for _, s := range servers {
		logStatus(s, logger)
	}
}

func logStatus(s statsSource, logger *log.Logger) {
	logger.Print(statusLine(s.Stats()))
}

// setupStatusReport logs a status line per listener on schedule. It returns
// nil when reporting is disabled or the schedule is bad.
func setupStatusReport(schedule string, servers []*tarpit.Server, logger *log.Logger) *cron.Cron {
	if schedule == "" || schedule == config.Disabled {
		return nil
	}
	c := cron.New()
	err := c.AddFunc(schedule, func() {
		reportStatus(servers, logger)
	})
	if err != nil {
		logger.Printf("Unable to schedule status report '%s': %v", schedule, err)
		return nil
	}
	c.Start()
	return c
}
