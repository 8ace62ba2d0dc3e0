package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ContentDigest/internal/app"
	"ContentDigest/internal/config"
	"ContentDigest/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "contentdigest",
	Short:         "Scheduled content collection and digest synthesis",
	Long:          "contentdigest collects posts from social timelines, channels and feeds, filters them by quality and age, and turns them into a persisted, distributed digest on a cron schedule.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (defaults to $CONTENT_DIGEST_CONFIG)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return config.Config{}, err
		}
	} else {
		cfg = config.Load()
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openApp() (*app.Application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format))
}
