// Command jobs runs the verification jobs once, for use from an external
// scheduler such as a Kubernetes CronJob.
//
//	jobs schedule|sweep|all|reindex
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"rental-marketplace/internal/app"
	"rental-marketplace/internal/config"
	"rental-marketplace/internal/logger"
)

const usage = "usage: jobs schedule|sweep|all|reindex"

var commands = map[string]bool{"schedule": true, "sweep": true, "all": true, "reindex": true}

// parseCommand checks the verb before anything is opened
func parseCommand(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New(usage)
	}
	if !commands[args[0]] {
		return "", fmt.Errorf("unknown command %q; %s", args[0], usage)
	}
	return args[0], nil
}

func main() {
	command, err := parseCommand(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "/app/config/verification.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config from %s: %v", configPath, err)
	}
	cfg.ApplyEnv()
	logger.Init(cfg.Logging.AppName+"-jobs", cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if command == "reindex" && cfg.Search.Meilisearch.Host == "" {
		logger.Log.Fatal("MEILISEARCH_HOST is required for reindex")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	var result interface{}
	switch command {
	case "schedule":
		result, err = a.Jobs.RunSchedule(ctx)
	case "sweep":
		result, err = a.Jobs.RunSweep(ctx)
	case "all":
		result, err = a.Jobs.RunAll(ctx)
	case "reindex":
		result, err = a.Processor.ReindexAll(ctx)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if result != nil {
		_ = enc.Encode(result)
	}
	if err != nil {
		logger.Log.WithError(err).Errorf("Job %s failed", command)
		a.Close()
		os.Exit(1)
	}
}
