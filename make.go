//go:build ignore
// +build ignore

// DEADEND - No-response TCP server
//
// Copyright (c) 2014-2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//

// Builds deadend and deadend-no-http into build/<goos>, with a sample conf
// beside them.
//
// Run on the command line with:
//
//	$ go run make.go
//
// Other options:
//
//	Run tests:
//	  $ go run make.go test
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	rootNamespace = "github.com/papercutsoftware/deadend"
)

var (
	projectRoot    string
	buildOutputDir string
)

func usage() {
	fmt.Println("Usage: go run make.go [flagged args] [non-flagged args]")
	fmt.Println("-goos=<operating system> target operating system for deadend executable. Default is taken from runtime")
	fmt.Println("-goarch=<architecture> target architecture for deadend executable. Default is taken from runtime")
	fmt.Println("Build action. Can be either 'all'(build all) or 'test'(test all). Default is 'all'")
	os.Exit(1)
}

func main() {
	goos := flag.String("goos", runtime.GOOS, "Specify target operating system for cross compilation")
	goarch := flag.String("goarch", runtime.GOARCH, "Specify target architecture for cross compilation")
	flag.Parse()

	_ = os.Setenv("GOFLAGS", "-mod=mod")

	if goos != nil {
		_ = os.Setenv("GOOS", *goos)
	}

	if goarch != nil {
		_ = os.Setenv("GOARCH", *goarch)
	}

	var err error
	projectRoot, err = os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("Failed to get current directory: %v\n", err))
	}
	buildOutputDir = filepath.Join(projectRoot, "build", *goos)

	action := "all"
	if len(flag.Args()) >= 1 {
		action = os.Args[1]
	}

	switch action {
	case "all":
		buildAll()
	case "test":
		testAll()
	default:
		usage()
	}
}

func buildAll() {
	makeDir(buildOutputDir)

	goos := os.Getenv("GOOS")
	goarch := os.Getenv("GOARCH")

	fmt.Printf("Building binaries for %s/%s ...\n", goos, goarch)
	_ = runCmd("go", "build", "-ldflags", "-s -w", "-o", makeOutputPath(buildOutputDir, "deadend"), rootNamespace+"/service")
	_ = runCmd("go", "build", "-tags", "nohttp", "-ldflags", "-s -w", "-o", makeOutputPath(buildOutputDir, "deadend-no-http"), rootNamespace+"/service")
	_ = copyFile(filepath.Join(projectRoot, "service", "testdata", "deadend.conf"), filepath.Join(buildOutputDir, "deadend.conf.sample"))

	fmt.Printf("\nCOMPLETE. You'll find the files in:\n    '%s'\n", buildOutputDir)
}

func testAll() {
	_ = runCmd("go", "test", rootNamespace+"/...")
}

func runCmd(cmd string, arg ...string) error {
	c := exec.Command(cmd, arg...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("error running command %s: %v", cmd, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0644)
}

func makeDir(dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		panic(err)
	}
}

func makeOutputPath(dir, name string) string {
	if os.Getenv("GOOS") == "windows" && !strings.HasSuffix(name, ".exe") {
		name += ".exe"
	}
	return filepath.Join(dir, name)
}
