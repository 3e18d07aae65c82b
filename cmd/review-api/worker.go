package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/temporalx"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker executing review job workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return err
		}
		defer done()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}
		s := store.NewStore(db)
		defer s.Close()

		objects, err := newObjectStore(cfg)
		if err != nil {
			zap.S().Fatalw("initializing object store", "error", err)
		}

		llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Timeout)
		orchestrator := newOrchestrator(cfg, s, llmClient, objects, llm.NewCompleter(llmClient, cfg.LLM.SummaryModel))

		c, err := temporalx.NewClient(ctx, cfg.Temporal.Address, cfg.Temporal.Namespace)
		if err != nil {
			zap.S().Fatalw("connecting to temporal", "error", err)
		}
		defer c.Close()

		w := temporalx.NewWorker(c, cfg.Temporal.TaskQueue, &temporalx.Activities{Orchestrator: orchestrator})
		zap.S().Infow("starting temporal worker", "task_queue", cfg.Temporal.TaskQueue)

		stop := make(chan interface{})
		go func() {
			<-ctx.Done()
			close(stop)
		}()
		return w.Run(stop)
	},
}
