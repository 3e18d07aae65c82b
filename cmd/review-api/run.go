package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubev2v/document-review/internal/admission"
	"github.com/kubev2v/document-review/internal/ambiguity"
	apiserver "github.com/kubev2v/document-review/internal/api_server"
	"github.com/kubev2v/document-review/internal/config"
	"github.com/kubev2v/document-review/internal/feedback"
	handlers "github.com/kubev2v/document-review/internal/handlers/v1alpha1"
	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/nextaction"
	"github.com/kubev2v/document-review/internal/objectstore"
	"github.com/kubev2v/document-review/internal/pipeline"
	"github.com/kubev2v/document-review/internal/queue"
	"github.com/kubev2v/document-review/internal/service"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/temporalx"
	"github.com/kubev2v/document-review/pkg/metrics"
	"github.com/kubev2v/document-review/pkg/opa"
	"github.com/kubev2v/document-review/pkg/tracing"
)

const (
	serviceName      = "document-review"
	defaultQueueName = "review-jobs"

	executorInProcess = "inprocess"
	executorTemporal  = "temporal"
)

var (
	version = "dev"

	legalExecutors = []string{executorInProcess, executorTemporal}
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the review api, the queue consumer and the in-process pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return err
		}
		defer done()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		shutdownTracing, err := tracing.Init(ctx, tracing.Config{
			ServiceName: serviceName,
			Version:     version,
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			zap.S().Fatalw("initializing tracing", "error", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}
		s := store.NewStore(db)
		defer s.Close()

		queueClient, err := queue.NewClient(ctx, cfg.Queue.RedisAddress)
		if err != nil {
			zap.S().Fatalw("connecting to the review queue", "error", err)
		}
		defer queueClient.Close()

		queueName := cfg.Queue.Name
		if queueName == "" {
			queueName = defaultQueueName
		}
		reviewQueue := queueClient.Queue(queueName)
		if err := metrics.RegisterQueueDepthCollector(queueName, reviewQueue); err != nil {
			zap.S().Warnw("failed to register queue depth collector", "error", err)
		}

		objects, err := newObjectStore(cfg)
		if err != nil {
			zap.S().Fatalw("initializing object store", "error", err)
		}

		validator, err := opa.NewValidatorFromDir(cfg.Service.PolicyDir)
		if err != nil {
			zap.S().Fatalw("loading submission policies", "error", err)
		}

		llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Timeout)
		summaryCompleter := llm.NewCompleter(llmClient, cfg.LLM.SummaryModel)

		orchestrator := newOrchestrator(cfg, s, llmClient, objects, summaryCompleter)
		executor, failures, err := newExecutor(ctx, cfg, orchestrator)
		if err != nil {
			zap.S().Fatalw("initializing review executor", "error", err)
		}

		counter, err := feedback.NewTiktokenCounter()
		if err != nil {
			zap.S().Fatalw("initializing token counter", "error", err)
		}
		summarizer := feedback.NewSummarizer(s, feedback.NewBuilder(counter, cfg.LLM.MaxContextTokens, cfg.LLM.SystemPromptReserve), summaryCompleter)

		gate := admission.NewGate(queueClient, queueName, cfg.Queue.DepthThreshold)
		reviewSrv := service.NewReviewService(s, gate, reviewQueue, objects, validator, service.Limits{
			MaxDocuments:    cfg.Review.MaxDocuments,
			MaxDocumentSize: cfg.Review.MaxDocumentSize,
			Bucket:          objects.Bucket(),
		})
		checklistSrv := service.NewChecklistService(s, ambiguity.NewProcessor(s, summaryCompleter), cfg.Review.AmbiguityConcurrency, summarizer)

		consumer := queue.NewConsumer(reviewQueue, executor, failures, queue.ConsumerConfig{
			MaxConcurrency:    cfg.Queue.MaxConcurrentReview,
			MaxWait:           cfg.Queue.MaxWait,
			ProcessingTimeout: cfg.Queue.ProcessingTimeout,
			RetryVisibility:   cfg.Queue.RetryVisibility,
			PollInterval:      cfg.Queue.PollInterval,
		})

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			consumer.Run(ctx)
			return nil
		})
		g.Go(func() error {
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				return err
			}
			server := apiserver.New(cfg, listener, handlers.NewServiceHandler(reviewSrv, checklistSrv))
			return server.Run(ctx)
		})
		g.Go(func() error {
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				return err
			}
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener).Run(ctx)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			zap.S().Errorw("service stopped with error", "error", err)
			return err
		}
		return nil
	},
}

func newObjectStore(cfg *config.Config) (*objectstore.Store, error) {
	return objectstore.NewMinioStore(
		objectstore.WithEndpoint(cfg.ObjectStore.Endpoint),
		objectstore.WithBucket(cfg.ObjectStore.Bucket),
		objectstore.WithAccessKey(cfg.ObjectStore.AccessKey),
		objectstore.WithSecretKey(cfg.ObjectStore.SecretAccessKey),
		objectstore.WithSSL(cfg.ObjectStore.UseSSL),
		objectstore.WithMaxObjectSize(cfg.Review.MaxDocumentSize),
	)
}

// newOrchestrator builds the review pipeline shared by the in-process runner
// and the Temporal worker.
func newOrchestrator(cfg *config.Config, s store.Store, client *llm.Client, objects *objectstore.Store, completer *llm.Completer) *pipeline.Orchestrator {
	opts := []llm.EvaluatorOption{
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxToolRounds(cfg.LLM.MaxToolRounds),
	}
	if cfg.LLM.KnowledgeBaseURL != "" {
		opts = append(opts, llm.WithKnowledgeBase(llm.NewHTTPRetriever(cfg.LLM.KnowledgeBaseURL, cfg.LLM.APIKey, cfg.LLM.ToolTimeout)))
	}
	if cfg.LLM.CodeInterpreterURL != "" {
		opts = append(opts, llm.WithCodeInterpreter(llm.NewHTTPCodeRunner(cfg.LLM.CodeInterpreterURL, cfg.LLM.APIKey, cfg.LLM.ToolTimeout)))
	}
	evaluator := llm.NewEvaluator(client, objects, cfg.LLM.DocumentModel, cfg.LLM.ImageModel, opts...)
	stage := pipeline.NewItemStage(s, evaluator, cfg.Review.DefaultLanguage, pipeline.RetryPolicy{
		BaseInterval: cfg.Review.RetryBaseInterval,
		MaxAttempts:  cfg.Review.RetryMaxAttempts,
	})

	var nextAction pipeline.NextActionGenerator
	if cfg.Review.NextActionEnabled {
		nextAction = nextaction.NewGenerator(s, completer, cfg.Review.NextActionTemplate)
	}
	return pipeline.NewOrchestrator(s, stage, cfg.Review.MaxItemConcurrency, nextAction)
}

func newExecutor(ctx context.Context, cfg *config.Config, orchestrator *pipeline.Orchestrator) (queue.Executor, queue.FailureHandler, error) {
	if !funk.Contains(legalExecutors, cfg.Review.Executor) {
		return nil, nil, fmt.Errorf("unknown review executor %q, expected one of %v", cfg.Review.Executor, legalExecutors)
	}

	switch cfg.Review.Executor {
	case executorTemporal:
		c, err := temporalx.NewClient(ctx, cfg.Temporal.Address, cfg.Temporal.Namespace)
		if err != nil {
			return nil, nil, err
		}
		executor := temporalx.NewExecutor(c, cfg.Temporal.TaskQueue, cfg.Review.MaxItemConcurrency, cfg.Review.RetryBaseInterval, cfg.Review.RetryMaxAttempts)
		return executor, orchestrator, nil
	default:
		runner := pipeline.NewRunner(ctx, orchestrator)
		return runner, runner, nil
	}
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
