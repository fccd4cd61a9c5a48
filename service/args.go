package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// parse returns the action and optional port from the command line. A bare
// port is shorthand for "run <port>". A blank action means the service
// manager launched us.
func parse(args []string) (action string, port int, err error) {
	args = normalizeArgs(args)
	if len(args) < 2 {
		return "", 0, nil
	}
	rest := args[1:]

	if p, ok := parsePort(rest[0]); ok {
		if len(rest) > 1 {
			return "", 0, errors.New("Invalid arguments")
		}
		return "run", p, nil
	}

	if !isArgValid(rest[0]) {
		return "", 0, fmt.Errorf("Invalid argument '%s'", rest[0])
	}
	action = rest[0]

	switch len(rest) {
	case 1:
	case 2:
		p, ok := parsePort(rest[1])
		if !ok {
			return "", 0, fmt.Errorf("Invalid port '%s'", rest[1])
		}
		port = p
	default:
		return "", 0, errors.New("Invalid arguments")
	}
	return action, port, nil
}

func parsePort(s string) (int, bool) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, false
	}
	return p, true
}

var validArgs = []string{
	"install",
	"uninstall",
	"start",
	"stop",
	"validate",
	"run",
	"help",
}

func isArgValid(arg string) bool {
	for _, valid := range validArgs {
		if arg == valid {
			return true
		}
	}
	return false
}

var aliases = map[string]string{
	"setup":  "install",
	"remove": "uninstall",
	"delete": "uninstall",
	"check":  "validate",
	"test":   "validate",
	"h":      "help",
	"?":      "help",
}

// normalizeArgs works on a copy; os.Args is left alone so a crash restart
// can see what we were started with.
func normalizeArgs(args []string) []string {
	out := append([]string(nil), args...)
	if len(out) <= 1 {
		return out
	}

	// Strip off any off the standard prefixes on first arg
	out[1] = strings.TrimLeft(out[1], "-/")

	if alias, ok := aliases[out[1]]; ok {
		out[1] = alias
	}
	return out
}
