// DEADEND - No-response TCP server
//
// Copyright (c) 2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//

//go:build nohttp

package telemetry

import (
	"errors"
	"log"
)

func (m *Metrics) Serve(addr string, logger *log.Logger) (stop func(), err error) {
	return nil, errors.New("The metrics endpoint is not supported in this version. Use the full version.")
}
