// DEADEND - No-response TCP server
//
// Copyright (c) 2014-2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//
package main

import (
	"path/filepath"
	"strings"

	"github.com/kardianos/osext"
)

func exePath() string {
	exePath, err := osext.Executable()
	if err != nil {
		panic(err)
	}
	return exePath
}

func exeName() (exeName string) {
	return filepath.Base(exePath())
}

func exeFolder() string {
	exeFolder, err := osext.ExecutableFolder()
	if err != nil {
		panic(err)
	}
	return exeFolder
}

// serviceName is the executable name without any ".exe". It names the
// service, the conf file and the default log file.
func serviceName() (name string) {
	return stripExe(exeName())
}

func getConfigFilePath() string {
	return stripExe(exePath()) + ".conf"
}

func stripExe(name string) string {
	if strings.ToLower(filepath.Ext(name)) == ".exe" {
		return name[:len(name)-4]
	}
	return name
}
