// DEADEND - No-response TCP server
//
// Copyright (c) 2014-2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//
// FUTURE: Parsing structs should be separated from returns structs.  The
//         return structs should have types like time.Duration, etc.
//

package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron"

	"github.com/papercutsoftware/deadend/lib/pathutils"
	"github.com/papercutsoftware/deadend/lib/tarpit"
)

const (
	Disabled = "disabled"

	defaultReloadFile       = ".reload"
	defaultLogFileMaxSizeMb = 50
	defaultStatusSchedule   = "@every 1m"
	defaultTimestampFormat  = "2006-01-02 15:04:05"
)

type Config struct {
	ServiceDescription ServiceDescription
	ServiceConfig      ServiceConfig
	Include            []string
	Listeners          []Listener
	Status             Status
	Metrics            Metrics
}

type ServiceDescription struct {
	Name        string
	DisplayName string
	Description string
}

type ServiceConfig struct {
	ReloadFile             string
	LogFile                string
	LogFileMaxSizeMb       int
	LogFileTimestampFormat string
	PidFile                string
	CrashLogFile           string
	UserName               string
}

type Listener struct {
	Name             string
	Address          string
	Port             int
	Backlog          int
	AcceptMode       string
	MaxConnections   int
	HoldTimeoutSecs  int
	AcceptRatePerSec float64
	AcceptBurst      int
}

type Status struct {
	Schedule string
}

type Metrics struct {
	Address string
}

type ReplacementVars struct {
	ServiceName string
	ServiceRoot string
}

// HostPort is the address handed to the listener.
func (l Listener) HostPort() string {
	return net.JoinHostPort(l.Address, strconv.Itoa(l.Port))
}

func (l Listener) HoldTimeout() time.Duration {
	return time.Duration(l.HoldTimeoutSecs) * time.Second
}

// LoadConfig parses config.
func LoadConfig(path string, vars ReplacementVars) (conf *Config, err error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("The conf file does not exist. Please place configuration here: %s", path)
	}
	conf, err = load(path, vars)
	if err != nil {
		return nil, err
	}
	err = validate(conf)
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// Default is the configuration used when there is no conf file but a port
// was given on the command line.
func Default(vars ReplacementVars) *Config {
	conf := &Config{
		ServiceDescription: ServiceDescription{
			Name:        vars.ServiceName,
			DisplayName: vars.ServiceName,
			Description: "Accepts TCP connections and never responds.",
		},
	}
	applyDefaults(conf)
	return conf
}

// Merge in an include file. Include files can only contribute listeners. The
// pattern resolves to its last match so versioned folders pick the newest.
func MergeInclude(conf Config, pattern string, vars ReplacementVars) (*Config, error) {
	path, ok := pathutils.LastMatch(pattern)
	if !ok {
		return &conf, fmt.Errorf("include %s did not match any file", pattern)
	}
	include, err := load(path, vars)
	if err != nil {
		return &conf, err
	}

	conf.Listeners = append(conf.Listeners, include.Listeners...)
	if err := validateListeners(conf.Listeners); err != nil {
		return &conf, fmt.Errorf("include %s: %w", path, err)
	}
	return &conf, nil
}

// OverridePort applies a port given on the command line. It replaces the
// first listener's port, or adds a listener when none is configured.
func OverridePort(conf *Config, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	if len(conf.Listeners) == 0 {
		conf.Listeners = append(conf.Listeners, Listener{})
	}
	l := &conf.Listeners[0]
	if l.Name == "" || l.Name == defaultListenerName(l.Port) {
		l.Name = ""
	}
	l.Port = port
	applyListenerDefaults(l)
	return validateListeners(conf.Listeners)
}

func load(path string, vars ReplacementVars) (conf *Config, err error) {
	s, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	replacements := map[string]string{
		"${ServiceName}": jsonEscapeString(vars.ServiceName),
		"${ServiceRoot}": jsonEscapeString(vars.ServiceRoot),
	}
	s = []byte(replaceVars(string(s), replacements))

	err = json.Unmarshal(s, &conf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if conf == nil {
		return nil, fmt.Errorf("%s: empty configuration", path)
	}

	applyDefaults(conf)

	return conf, nil
}

func validate(conf *Config) error {
	if conf.ServiceDescription.DisplayName == "" {
		return fmt.Errorf("ServiceDescription.DisplayName is required configuration")
	}
	if conf.ServiceConfig.LogFileMaxSizeMb < 0 {
		return fmt.Errorf("ServiceConfig.LogFileMaxSizeMb must not be negative")
	}
	if conf.Status.Schedule != Disabled {
		if _, err := cron.Parse(conf.Status.Schedule); err != nil {
			return fmt.Errorf("Status.Schedule '%s': %w", conf.Status.Schedule, err)
		}
	}
	return validateListeners(conf.Listeners)
}

func validateListeners(listeners []Listener) error {
	names := make(map[string]bool)
	for i, l := range listeners {
		if l.Port < 1 || l.Port > 65535 {
			return fmt.Errorf("Listeners[%d].Port %d is out of range", i, l.Port)
		}
		if _, err := tarpit.ParseAcceptMode(l.AcceptMode); err != nil {
			return fmt.Errorf("Listeners[%d].AcceptMode: %w", i, err)
		}
		if l.Backlog < 0 || l.MaxConnections < 0 || l.HoldTimeoutSecs < 0 ||
			l.AcceptRatePerSec < 0 || l.AcceptBurst < 0 {
			return fmt.Errorf("Listeners[%d] (%s) has a negative setting", i, l.Name)
		}
		if names[l.Name] {
			return fmt.Errorf("Listeners[%d].Name %q is not unique", i, l.Name)
		}
		names[l.Name] = true
		for _, other := range listeners[:i] {
			if bindsOverlap(l, other) {
				return fmt.Errorf("Listeners[%d] (%s) and %s both bind %s", i, l.Name, other.Name, l.HostPort())
			}
		}
	}
	return nil
}

// bindsOverlap reports whether two listeners cannot both be bound. A
// wildcard address takes the port on every interface.
func bindsOverlap(a, b Listener) bool {
	if a.Port != b.Port {
		return false
	}
	return a.Address == b.Address || isWildcard(a.Address) || isWildcard(b.Address)
}

func isWildcard(address string) bool {
	if address == "" {
		return true
	}
	ip := net.ParseIP(address)
	return ip != nil && ip.IsUnspecified()
}

func applyDefaults(conf *Config) {
	if conf.ServiceConfig.ReloadFile == "" {
		conf.ServiceConfig.ReloadFile = defaultReloadFile
	}
	if conf.ServiceConfig.LogFileMaxSizeMb == 0 {
		conf.ServiceConfig.LogFileMaxSizeMb = defaultLogFileMaxSizeMb
	}
	if conf.ServiceConfig.LogFileTimestampFormat == "" {
		conf.ServiceConfig.LogFileTimestampFormat = defaultTimestampFormat
	}
	if conf.Status.Schedule == "" {
		conf.Status.Schedule = defaultStatusSchedule
	}
	for i := range conf.Listeners {
		applyListenerDefaults(&conf.Listeners[i])
	}
}

func applyListenerDefaults(l *Listener) {
	if l.Backlog == 0 {
		l.Backlog = tarpit.DefaultBacklog
	}
	if l.AcceptMode == "" {
		l.AcceptMode = string(tarpit.AcceptAll)
	}
	if l.AcceptBurst == 0 {
		l.AcceptBurst = 1
	}
	if l.Name == "" {
		l.Name = defaultListenerName(l.Port)
	}
}

func defaultListenerName(port int) string {
	return fmt.Sprintf("port-%d", port)
}

func replaceVars(in string, replacements map[string]string) (out string) {
	out = in
	for key, value := range replacements {
		out = strings.Replace(out, key, value, -1)
	}
	return out
}

func jsonEscapeString(in string) (out string) {
	// FIXME: We should be a bit smarter
	r := strings.NewReplacer("\\", "\\\\", "\"", "\\\"")
	return r.Replace(in)
}
