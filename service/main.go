// DEADEND - No-response TCP server
//
// Copyright (c) 2014-2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/kardianos/service"
	"github.com/robfig/cron"

	"github.com/papercutsoftware/deadend/lib/logging"
	"github.com/papercutsoftware/deadend/lib/osutils"
	"github.com/papercutsoftware/deadend/lib/tarpit"
	"github.com/papercutsoftware/deadend/lib/telemetry"
	"github.com/papercutsoftware/deadend/service/config"
)

const (
	defaultDisplayName = "Dead End"
	defaultDescription = "Accepts TCP connections and never responds."
)

// runContext carries everything a running instance owns. doStart and doStop
// may be called repeatedly (reload, crash recovery); mu serializes them.
type runContext struct {
	conf       *config.Config
	logger     *log.Logger
	reloadConf func() (*config.Config, error)

	mu          sync.Mutex
	running     bool
	servers     []*tarpit.Server
	cancel      context.CancelFunc
	done        sync.WaitGroup
	cronManager *cron.Cron
	stopMetrics func()
	reload      *reloadWatcher
}

func main() {
	action, port, err := parse(os.Args)
	if err != nil || action == "help" {
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n\n", err)
		}
		if conf, cerr := loadConf(port); cerr == nil {
			printUsage(conf.ServiceDescription.DisplayName, conf.ServiceDescription.Description)
		} else {
			printUsage(defaultDisplayName, defaultDescription)
		}
		if err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := os.Chdir(exeFolder()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to set working directory - %v\n", err)
		os.Exit(1)
	}

	conf, err := loadConf(port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Invalid config - %v\n", err)
		os.Exit(1)
	}

	switch action {
	case "validate":
		fmt.Println("Config is valid")
		for _, l := range conf.Listeners {
			fmt.Printf("    %s: %s (mode: %s, backlog: %d)\n", l.Name, l.HostPort(), l.AcceptMode, l.Backlog)
		}
		os.Exit(0)
	default:
		serviceControl(conf, action, port)
	}
}

func serviceControl(conf *config.Config, action string, port int) {
	// Setup log file out
	logFile := conf.ServiceConfig.LogFile
	if logFile == "" {
		logFile = serviceName() + ".log"
	}
	opts := logging.Options{
		MaxSize:         int64(conf.ServiceConfig.LogFileMaxSizeMb) * 1024 * 1024,
		Owner:           conf.ServiceConfig.UserName,
		TimestampFormat: conf.ServiceConfig.LogFileTimestampFormat,
	}
	if service.Interactive() {
		opts.Echo = os.Stderr
	}
	ctx := &runContext{
		conf:   conf,
		logger: logging.NewFileLogger(logFile, opts),
		reloadConf: func() (*config.Config, error) {
			return loadConf(port)
		},
	}

	svc, err := service.New(&program{ctx: ctx}, serviceConfig(conf, port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Invalid service config: %v\n", err)
		os.Exit(1)
	}

	if action != "" && action != "run" {
		err = service.Control(svc, action)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Invalid service command: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	err = svc.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func serviceConfig(conf *config.Config, port int) *service.Config {
	svcConfig := &service.Config{
		Name:        serviceName(),
		DisplayName: conf.ServiceDescription.DisplayName,
		Description: conf.ServiceDescription.Description,
		UserName:    conf.ServiceConfig.UserName,
	}
	if conf.ServiceDescription.Name != "" {
		svcConfig.Name = conf.ServiceDescription.Name
	}
	// A port given at install time must survive into the installed service.
	if port > 0 {
		svcConfig.Arguments = []string{"run", strconv.Itoa(port)}
	}
	return svcConfig
}

func printUsage(svcDisplayName, svcDesc string) {
	fmt.Printf("%s (%s)\n", svcDisplayName, serviceName())
	fmt.Printf("%s\n\n", svcDesc)
	fmt.Printf("Usage:\n")
	fmt.Printf("%s [install|uninstall|start|stop|validate|run|help] [port]\n", exeName())
	fmt.Printf("%s <port>\n", exeName())
	fmt.Printf("  install   - Install the service.\n")
	fmt.Printf("  uninstall - Remove/uninstall the service.\n")
	fmt.Printf("  start     - Start an installed service.\n")
	fmt.Printf("  stop      - Stop an installed service.\n")
	fmt.Printf("  validate  - Test the configuration file.\n")
	fmt.Printf("  run       - Run service on in command-line mode.\n")
	fmt.Printf("  help      - This usage message.\n")
	fmt.Printf("  port      - Listen on this port, overriding the first configured listener.\n")
}

func loadConf(port int) (*config.Config, error) {
	vars := config.ReplacementVars{
		ServiceName: serviceName(),
		ServiceRoot: exeFolder(),
	}
	return loadConfFrom(getConfigFilePath(), vars, port)
}

func loadConfFrom(path string, vars config.ReplacementVars, port int) (conf *config.Config, err error) {
	if port > 0 && !osutils.FileExists(path) {
		conf = config.Default(vars)
	} else {
		conf, err = config.LoadConfig(path, vars)
		if err != nil {
			return nil, err
		}
	}

	// Merge in any include files
	for _, include := range conf.Include {
		conf, err = config.MergeInclude(*conf, include, vars)
		if err != nil {
			return nil, err
		}
	}

	if port > 0 {
		if err := config.OverridePort(conf, port); err != nil {
			return nil, err
		}
	}
	if len(conf.Listeners) == 0 {
		return nil, fmt.Errorf("no listeners configured; add Listeners to %s or give a port", path)
	}
	return conf, nil
}

type program struct {
	ctx *runContext
}

func (p *program) Start(s service.Service) error {
	ctx := p.ctx
	if err := doStart(ctx); err != nil {
		ctx.logger.Printf("ERROR: Unable to start: %v", err)
		return err
	}

	if pidFile := ctx.conf.ServiceConfig.PidFile; pidFile != "" {
		if err := osutils.WritePidFile(pidFile); err != nil {
			ctx.logger.Printf("WARNING: %v", err)
		}
	}

	armReload(ctx)

	msg := fmt.Sprintf("Service '%s' started.", serviceName())
	ctx.logger.Print(msg)
	if sysLogger, err := s.Logger(nil); err == nil {
		sysLogger.Info(msg)
	}
	return nil
}

func (p *program) Stop(s service.Service) error {
	ctx := p.ctx
	ctx.logger.Printf("Stopping '%s' service...", serviceName())

	ctx.mu.Lock()
	rw := ctx.reload
	ctx.reload = nil
	ctx.mu.Unlock()
	if rw != nil {
		rw.stop()
	}
	doStop(ctx)

	if pidFile := ctx.conf.ServiceConfig.PidFile; pidFile != "" {
		osutils.RemovePidFile(pidFile)
	}

	msg := fmt.Sprintf("Stopped '%s' service.", serviceName())
	ctx.logger.Print(msg)
	if sysLogger, err := s.Logger(nil); err == nil {
		sysLogger.Info(msg)
	}
	return nil
}

func listenerConfig(l config.Listener, logger *log.Logger, observer tarpit.Observer) tarpit.Config {
	return tarpit.Config{
		Name:           l.Name,
		Address:        l.HostPort(),
		Backlog:        l.Backlog,
		Mode:           tarpit.AcceptMode(l.AcceptMode),
		MaxConnections: l.MaxConnections,
		HoldTimeout:    l.HoldTimeout(),
		AcceptRate:     l.AcceptRatePerSec,
		AcceptBurst:    l.AcceptBurst,
		Logger:         logger,
		Observer:       observer,
	}
}

// doStart binds every listener before serving any of them, so a bad port
// leaves nothing half started.
func doStart(ctx *runContext) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.running {
		return nil
	}

	metrics := telemetry.New()
	servers := make([]*tarpit.Server, 0, len(ctx.conf.Listeners))
	for _, l := range ctx.conf.Listeners {
		s, err := tarpit.Listen(listenerConfig(l, ctx.logger, metrics))
		if err != nil {
			for _, started := range servers {
				started.Close()
			}
			return err
		}
		servers = append(servers, s)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ctx.servers = servers
	ctx.cancel = cancel
	for _, s := range servers {
		ctx.done.Add(1)
		go func(s *tarpit.Server) {
			defer handlePanic(ctx)
			defer ctx.done.Done()
			if err := s.Serve(runCtx); err != nil {
				ctx.logger.Printf("ERROR: Listener '%s' reported: %v", s.Name(), err)
			}
		}(s)
	}

	ctx.cronManager = setupStatusReport(ctx.conf.Status.Schedule, servers, ctx.logger)

	if addr := ctx.conf.Metrics.Address; addr != "" {
		stop, err := metrics.Serve(addr, ctx.logger)
		if err != nil {
			ctx.logger.Printf("WARNING: Metrics endpoint not started: %v", err)
		} else {
			ctx.stopMetrics = stop
		}
	}

	ctx.running = true
	return nil
}

func doStop(ctx *runContext) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if !ctx.running {
		return
	}

	if ctx.cronManager != nil {
		ctx.cronManager.Stop()
		ctx.cronManager = nil
	}
	if ctx.cancel != nil {
		ctx.cancel()
	}
	ctx.done.Wait()
	if ctx.stopMetrics != nil {
		ctx.stopMetrics()
		ctx.stopMetrics = nil
	}
	ctx.servers = nil
	ctx.running = false
}

// restart stops, reloads conf and starts again. On a bad conf the previous
// one is kept. A changed pid file or reload file follows the new conf.
func restart(ctx *runContext) {
	doStop(ctx)

	ctx.mu.Lock()
	prev := ctx.conf.ServiceConfig
	ctx.mu.Unlock()

	if conf, err := ctx.reloadConf(); err != nil {
		ctx.logger.Printf("ERROR: Reload failed, keeping previous config: %v", err)
	} else {
		ctx.mu.Lock()
		ctx.conf = conf
		ctx.mu.Unlock()
	}
	if err := doStart(ctx); err != nil {
		ctx.logger.Printf("ERROR: Unable to restart: %v", err)
	}

	next := ctx.conf.ServiceConfig
	if next.PidFile != prev.PidFile {
		if prev.PidFile != "" {
			osutils.RemovePidFile(prev.PidFile)
		}
		if next.PidFile != "" {
			if err := osutils.WritePidFile(next.PidFile); err != nil {
				ctx.logger.Printf("WARNING: %v", err)
			}
		}
	}
	if next.ReloadFile != prev.ReloadFile {
		armReload(ctx)
	}
}

// armReload starts watching the configured reload file and retires any
// previous watcher. restart runs on the old watcher's goroutine, so the old
// one is stopped in the background.
func armReload(ctx *runContext) {
	rw, err := watchForReload(ctx)
	if err != nil {
		ctx.logger.Printf("WARNING: Reload file watching is unavailable: %v", err)
	}

	ctx.mu.Lock()
	old := ctx.reload
	ctx.reload = rw
	ctx.mu.Unlock()

	if old != nil {
		go old.stop()
	}
}
