package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/ecoguardian/ecoguardian"
	"github.com/ecoguardian/ecoguardian/predict"
	"github.com/ecoguardian/ecoguardian/source"
)

func main() {
	// Define command line flags for each subcommand
	analyzeCmd := flag.NewFlagSet("analyze", flag.ExitOnError)
	analyzeCity := analyzeCmd.String("city", "", "City to analyze (required)")
	analyzeConfig := analyzeCmd.String("config", "", "Optional YAML config file")

	compareCmd := flag.NewFlagSet("compare", flag.ExitOnError)
	compareCities := compareCmd.String("cities", "", "Comma-separated cities to compare (required)")
	compareConfig := compareCmd.String("config", "", "Optional YAML config file")

	monitorCmd := flag.NewFlagSet("monitor", flag.ExitOnError)
	monitorCity := monitorCmd.String("city", "", "City to monitor (required)")
	monitorConfig := monitorCmd.String("config", "", "Optional YAML config file")
	compactSchedule := monitorCmd.String("compact-every", "@every 10m", "Cron schedule for background compaction")

	healCmd := flag.NewFlagSet("heal", flag.ExitOnError)
	healCities := healCmd.String("cities", "", "Comma-separated cities to heal (required)")
	healConfig := healCmd.String("config", "", "Optional YAML config file")

	if len(os.Args) < 2 {
		fmt.Println("Expected 'analyze', 'compare', 'monitor' or 'heal' subcommand")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "analyze":
		analyzeCmd.Parse(os.Args[2:])
		requireFlag(analyzeCmd, *analyzeCity, "--city")
		app := mustBuild(*analyzeConfig)
		defer app.close()
		run, err := app.coordinator.RunSequential(ctx, *analyzeCity)
		reportRun(run, err)

	case "compare":
		compareCmd.Parse(os.Args[2:])
		requireFlag(compareCmd, *compareCities, "--cities")
		app := mustBuild(*compareConfig)
		defer app.close()
		run, err := app.coordinator.RunParallel(ctx, splitCities(*compareCities))
		reportRun(run, err)

	case "monitor":
		monitorCmd.Parse(os.Args[2:])
		requireFlag(monitorCmd, *monitorCity, "--city")
		app := mustBuild(*monitorConfig)
		defer app.close()

		scheduler := cron.New()
		_, err := scheduler.AddFunc(*compactSchedule, func() {
			removed, err := app.bank.Compact(app.cfg.Coordinator.CompactionReduction)
			if err != nil {
				app.logger.Error("scheduled compaction failed", "error", err)
				return
			}
			app.logger.Info("scheduled compaction", "removed", removed)
		})
		if err != nil {
			log.Fatalf("Invalid compaction schedule: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()

		run, err := app.coordinator.RunLoop(ctx, *monitorCity)
		reportRun(run, err)

	case "heal":
		healCmd.Parse(os.Args[2:])
		requireFlag(healCmd, *healCities, "--cities")
		app := mustBuild(*healConfig)
		defer app.close()
		run, err := app.coordinator.RunHybrid(ctx, splitCities(*healCities))
		reportRun(run, err)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Expected 'analyze', 'compare', 'monitor' or 'heal' subcommand")
		os.Exit(1)
	}
}

// app bundles the assembled orchestration components.
type app struct {
	cfg         *ecoguardian.Config
	logger      *slog.Logger
	bank        *ecoguardian.MemoryBank
	bus         *ecoguardian.Bus
	coordinator *ecoguardian.Coordinator
	store       ecoguardian.Storage
}

func mustBuild(configPath string) *app {
	cfg, err := ecoguardian.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	sink := ecoguardian.NewSlogSink(logger)

	bank := ecoguardian.NewMemoryBank(cfg.BankCapacity, sink, logger)
	bus := ecoguardian.NewBus(sink, logger)
	eval := ecoguardian.NewEvaluator(cfg.Evaluator, sink, logger)
	registry := ecoguardian.NewRegistry(logger)

	// Live weather data when a key is configured, the simulator otherwise.
	var dataSource ecoguardian.DataSource
	if cfg.WeatherAPIKey != "" {
		dataSource = ecoguardian.NewBreakerSource(source.NewOpenWeather(cfg.WeatherAPIKey), 0, 0, logger)
	} else {
		logger.Info("no weather API key, using simulated readings")
		dataSource = source.NewSimulated()
	}

	// Model-backed predictions when a key is configured, with the rule
	// engine as fallback; the rule engine alone otherwise.
	var predictor ecoguardian.Predictor = predict.NewRule()
	if cfg.OpenAIAPIKey != "" {
		client := predict.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model)
		breaker := ecoguardian.NewBreakerPredictor(client, 0, 0, logger)
		predictor = predict.NewFallback(breaker, predict.NewRule(), logger)
	}

	for _, agent := range []ecoguardian.Agent{
		ecoguardian.NewCollectorAgent("eco-collector", dataSource, bank, logger),
		ecoguardian.NewPredictorAgent("eco-predictor", predictor, bank, logger),
		ecoguardian.NewDeployerAgent("eco-deployer", bank, logger),
	} {
		if err := registry.Register(agent); err != nil {
			log.Fatalf("Failed to register agent: %v", err)
		}
	}

	coordinator := ecoguardian.NewCoordinator(registry, bus, bank, eval, cfg.Coordinator, sink, logger)

	var store ecoguardian.Storage
	switch {
	case cfg.PostgresURI != "":
		store, err = ecoguardian.NewPostgresStorage(cfg.PostgresURI)
	case cfg.ArchivePath != "":
		store, err = ecoguardian.NewSQLiteStorage(cfg.ArchivePath)
	}
	if err != nil {
		log.Fatalf("Failed to initialize archive: %v", err)
	}
	if store != nil {
		coordinator.SetArchive(store)
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		bank:        bank,
		bus:         bus,
		coordinator: coordinator,
		store:       store,
	}
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close archive", "error", err)
		}
	}
}

func requireFlag(fs *flag.FlagSet, value, name string) {
	if value == "" {
		fmt.Printf("Error: %s flag is required\n", name)
		fs.PrintDefaults()
		os.Exit(1)
	}
}

func splitCities(raw string) []string {
	var cities []string
	for _, city := range strings.Split(raw, ",") {
		if city = strings.TrimSpace(city); city != "" {
			cities = append(cities, city)
		}
	}
	return cities
}

func reportRun(run *ecoguardian.WorkflowRun, err error) {
	if run != nil {
		doc, marshalErr := json.MarshalIndent(run, "", "  ")
		if marshalErr != nil {
			log.Fatalf("Failed to encode run: %v", marshalErr)
		}
		fmt.Println(string(doc))
	}
	if err != nil {
		log.Fatalf("Workflow failed: %v", err)
	}
}
