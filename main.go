package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"pingmesh/commands"
	"pingmesh/config"
	"pingmesh/discovery"
)

func setLogLevel(level string) {
	l, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(l)
}

func registerGlobalFlags(fset *flag.FlagSet) {
	flag.VisitAll(func(f *flag.Flag) {
		fset.Var(f.Value, f.Name, f.Usage)
	})
}

func checkConfig(cfg string) {
	if cfg == "" {
		log.Fatal("Config file not specified")
	}
}

func loadConfig(path string) *config.Config {
	checkConfig(path)
	cfg, err := config.NewConfigFromFile(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// main is the entry point of the application.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configFile := flag.String("config", "", "Path to config file")
	logLevel := flag.String("loglevel", "info", "Log level")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	force := initCmd.Bool("force", false, "Overwrite an existing config file")
	registerGlobalFlags(initCmd)

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	registerGlobalFlags(serveCmd)

	infoCmd := flag.NewFlagSet("info", flag.ExitOnError)
	tail := infoCmd.Uint64("tail", 50, "Number of most recent journal events to show")
	registerGlobalFlags(infoCmd)

	simCmd := flag.NewFlagSet("simulate", flag.ExitOnError)
	simNodes := simCmd.Int("nodes", 5, "Number of simulated nodes")
	simDuration := simCmd.Uint64("duration", 60000, "Simulated run time in ms")
	simStep := simCmd.Uint64("step", 10, "Simulated clock step in ms")
	simKill := simCmd.Uint64("kill", 20000, "Detach the last node at this time in ms, 0 to keep all nodes")
	simLoss := simCmd.Float64("loss", 0.0, "Probability that a delivery is dropped")
	simSeed := simCmd.Int64("seed", 1, "Seed for the loss generator")
	simCapacity := simCmd.Int("capacity", 0, "Peer table capacity, 0 for the default")
	simInterval := simCmd.Uint64("interval", discovery.DefaultInterval, "Tick interval in ms")
	simTimeout := simCmd.Uint64("timeout", discovery.DefaultTimeout, "Probe timeout in ms")
	registerGlobalFlags(simCmd)

	if len(os.Args) < 2 {
		log.WithField("args", os.Args).Fatal("Expected a subcommand")
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "init":
		initCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		cfg := config.NewEmptyConfig(*configFile)
		commands.RunInit(ctx, cfg, *force)
	case "serve":
		serveCmd.Parse(args)
		setLogLevel(*logLevel)
		commands.RunServe(ctx, loadConfig(*configFile))
	case "info":
		infoCmd.Parse(args)
		setLogLevel(*logLevel)
		commands.RunInfo(ctx, loadConfig(*configFile), *tail)
	case "simulate":
		simCmd.Parse(args)
		setLogLevel(*logLevel)
		commands.RunSimulate(ctx, commands.SimulateOptions{
			Nodes:      *simNodes,
			DurationMs: *simDuration,
			StepMs:     *simStep,
			KillAtMs:   *simKill,
			LossRate:   *simLoss,
			Seed:       *simSeed,
			Engine: discovery.Config{
				Capacity: *simCapacity,
				Interval: *simInterval,
				Timeout:  *simTimeout,
			},
		})
	default:
		log.Fatalf("Invalid subcommand '%s'", os.Args[1])
	}
}
