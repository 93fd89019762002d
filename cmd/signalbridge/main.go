// Command signalbridge is the webhook-to-order bridge entry point. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and runs the HTTP ingress plus background workers until interrupted.
//
// The encrypt-secret subcommand encrypts an exchange API secret with a
// password so the plaintext never has to live in the config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradewire/signalbridge/internal/app"
	"github.com/tradewire/signalbridge/internal/config"
	"github.com/tradewire/signalbridge/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-secret" {
		os.Exit(encryptSecret(os.Args[2:]))
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration. A missing default config file is fine; env vars can
	// carry the whole configuration.
	path := *configPath
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "config.toml" {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("signal bridge starting",
		slog.Bool("dry_run", cfg.Trading.DryRun),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("signal bridge stopped")
}

// encryptSecret reads the secret and password from the environment, encrypts,
// and writes the JSON blob to the output path.
func encryptSecret(args []string) int {
	fs := flag.NewFlagSet("encrypt-secret", flag.ExitOnError)
	out := fs.String("out", "secret.json", "output path for the encrypted secret")
	fs.Parse(args)

	secret := os.Getenv("SIGNALBRIDGE_SECRET_PLAINTEXT")
	password := os.Getenv("SIGNALBRIDGE_SECRET_PASSWORD")
	if secret == "" || password == "" {
		fmt.Fprintln(os.Stderr, "encrypt-secret: set SIGNALBRIDGE_SECRET_PLAINTEXT and SIGNALBRIDGE_SECRET_PASSWORD")
		return 1
	}

	blob, err := crypto.EncryptSecret(secret, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encrypt-secret: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "encrypt-secret: write %s: %v\n", *out, err)
		return 1
	}
	fmt.Printf("encrypted secret written to %s\n", *out)
	return 0
}
