package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/config"
	"github.com/kubev2v/document-review/pkg/log"
)

var (
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "review-api",
	Short: "Reviews documents against checklists",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML file overlaying the environment configuration")
}

// setup loads the configuration and installs the global logger. The returned
// func restores the previous logger and flushes this one.
func setup() (*config.Config, func(), error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel), cfg.Service.LogFormat)
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
