package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dougsko/specand/pkg/config"
	"github.com/dougsko/specand/pkg/engine"
	"github.com/dougsko/specand/pkg/logging"
	"github.com/dougsko/specand/pkg/verbose"
)

const Build = "development"

var fOptions struct {
	ConfigPath  string
	SocketPath  string
	LogLevel    string
	Verbose     bool
	ShowVersion bool
}

func optionsSet() *pflag.FlagSet {
	set := pflag.NewFlagSet("specand", pflag.ExitOnError)

	set.StringVarP(&fOptions.ConfigPath, "config", "c", "specand.yaml", "Configuration file path")
	set.StringVar(&fOptions.SocketPath, "socket", "", "Unix socket path (overrides api.unix_socket)")
	set.StringVar(&fOptions.LogLevel, "log-level", "", "Log level (overrides logging.level)")
	set.BoolVarP(&fOptions.Verbose, "verbose", "v", false, "Trace every SCPI exchange on stderr")
	set.BoolVar(&fOptions.ShowVersion, "version", false, "Show version information")

	return set
}

func main() {
	set := optionsSet()
	set.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s serves R&S spectrum analyzers over a unix socket and HTTP.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [options]\n\nOptions:\n", os.Args[0])
		set.PrintDefaults()
	}
	set.Parse(os.Args[1:])

	if fOptions.ShowVersion {
		fmt.Printf("specand version %s (%s)\n", engine.Version, Build)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(fOptions.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if fOptions.SocketPath != "" {
		cfg.API.UnixSocket = fOptions.SocketPath
	}
	if fOptions.LogLevel != "" {
		cfg.Logging.Level = fOptions.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	verbose.SetEnabled(fOptions.Verbose)

	logging.Infof("main", "specand version %s starting...", engine.Version)
	for _, inst := range cfg.Instruments {
		logging.Infof("main", "Instrument %s: %s", inst.Name, inst.Resource)
	}
	logging.Infof("main", "Web interface: http://%s:%d", cfg.Web.BindAddress, cfg.Web.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon := NewDaemon(cfg)
	if err := daemon.Run(ctx); err != nil {
		logging.Errorf("main", "specand failed: %v", err)
		logging.CloseGlobalLogger()
		os.Exit(1)
	}

	logging.Info("main", "specand stopped")
}
