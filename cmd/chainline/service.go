package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	bq "google.golang.org/api/bigquery/v2"
	gcs "google.golang.org/api/storage/v1"

	"github.com/chainline/chainline/internal/config"
	"github.com/chainline/chainline/internal/consumer"
	"github.com/chainline/chainline/internal/idgen"
	"github.com/chainline/chainline/internal/joblog"
	"github.com/chainline/chainline/internal/logging"
	"github.com/chainline/chainline/internal/objstore"
	"github.com/chainline/chainline/internal/pipeline"
	"github.com/chainline/chainline/internal/redis"
	"github.com/chainline/chainline/internal/sink"
	"github.com/chainline/chainline/internal/supervisor"
	"github.com/chainline/chainline/internal/taskmq"
	"github.com/chainline/chainline/internal/warehouse"
	"github.com/chainline/chainline/internal/workers"
)

type consumerRunner struct {
	consumer.Consumer
}

func (consumerRunner) Name() string { return "task-consumer" }

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Parse(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logging.WithLogLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	logProcessor, err := joblog.NewBatchProcessor(ctx, logger, joblog.NewRedisStore(redisClient), joblog.BatchProcessorConfig{
		ItemCountThreshold: cfg.LogBatcherItemCountThreshold,
		DelayThreshold:     time.Duration(cfg.LogBatcherDelayThresholdSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	defer logProcessor.Shutdown()

	registry := pipeline.NewRegistry(logger, pipeline.WithLogSink(logProcessor))

	bqService, err := bq.NewService(ctx)
	if err != nil {
		return fmt.Errorf("warehouse client: %w", err)
	}
	gcsService, err := gcs.NewService(ctx)
	if err != nil {
		return fmt.Errorf("storage client: %w", err)
	}

	wh := warehouse.NewBigQueryService(bqService)
	retry := pipeline.NewRetryPolicy(logger)
	retry.MaxAttempts = cfg.RetryMaxAttempts

	workers.RegisterAll(registry, workers.Deps{
		Jobs:       wh,
		Pages:      wh,
		Lister:     objstore.NewGCSLister(gcsService),
		Sink:       sink.New(cfg.SinkEndpointURL, sink.WithUserAgent(cfg.SinkUserAgent)),
		Retry:      retry,
		PollBudget: time.Duration(cfg.PollBudgetSeconds) * time.Second,
	})

	queue := taskmq.New(taskmq.WithQueue(cfg.TaskQueue))
	cleanup, err := queue.Init(ctx)
	if err != nil {
		return fmt.Errorf("task queue init: %w", err)
	}
	defer cleanup()

	subscription, err := queue.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("task queue subscribe: %w", err)
	}

	handler := taskmq.NewMessageHandler(logger, registry, queue)
	taskConsumer := consumer.New(subscription, handler,
		consumer.WithName("taskmq"),
		consumer.WithConcurrency(cfg.Concurrency),
		consumer.WithLogger(logger),
	)

	sup := supervisor.New(logger, supervisor.WithShutdownTimeout(30*time.Second))
	sup.Register(consumerRunner{taskConsumer})
	return sup.Run(ctx)
}

func runEnqueue(ctx context.Context, configPath, workerType, rawParams, instanceID string) error {
	cfg, err := config.Parse(configPath)
	if err != nil {
		return err
	}

	params := map[string]any{}
	if rawParams != "" {
		if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
			return fmt.Errorf("invalid --params: %w", err)
		}
	}
	if instanceID == "" {
		instanceID = idgen.InstanceID()
	}

	queue := taskmq.New(taskmq.WithQueue(cfg.TaskQueue))
	cleanup, err := queue.Init(ctx)
	if err != nil {
		return fmt.Errorf("task queue init: %w", err)
	}
	defer cleanup()

	task := taskmq.Task{
		WorkerType: workerType,
		Params:     params,
		InstanceID: instanceID,
	}
	if err := queue.Publish(ctx, task); err != nil {
		return err
	}
	fmt.Printf("enqueued %s (instance %s)\n", workerType, instanceID)
	return nil
}
