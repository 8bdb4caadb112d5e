package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/vibeops/config"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
)

func main() {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "vibeops",
		Short:         "Feed ranking, creator payouts and ops broadcasts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(
		serveCMD(&cfgPath),
		workerCMD(&cfgPath),
		migrateCMD(&cfgPath),
		jobCMD(&cfgPath),
		adminCMD(&cfgPath),
		tokenCMD(&cfgPath),
		tailCMD(&cfgPath),
		scoreCMD(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// load reads config and builds the process logger.
func load(cfgPath string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.General.LogLevel
	if cfg.General.Debug {
		level = "debug"
	}
	log, err := logger.New(logger.Options{
		Env:      cfg.General.Env,
		Level:    level,
		Redact:   cfg.General.Env == "prod",
		HashSalt: os.Getenv("VIBEOPS_LOG_SALT"),
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
