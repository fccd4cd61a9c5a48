// DEADEND - No-response TCP server
//
// Copyright (c) 2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//

package tarpit

import (
	"context"
	"log"
	"net"
)

func listen(address string, backlog int, logger *log.Logger) (net.Listener, error) {
	if backlog != DefaultBacklog {
		logger.Printf("WARNING: Backlog %d ignored on Windows; using the system default", backlog)
	}
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp", address)
}
