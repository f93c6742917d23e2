// Package worker implements the worker command: a pool of check workers
// draining the Redis task queue until interrupted.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/linkscan/cmd/common"
	"github.com/jonesrussell/linkscan/internal/queue"
	internalworker "github.com/jonesrussell/linkscan/internal/worker"
)

// Command returns the worker command for use in the root command.
func Command() *cobra.Command {
	var workerCount int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run check workers against the task queue",
		Long: `Starts a pool of link-check workers consuming from the Redis task
queue. Runs until interrupted; in-flight checks are drained on shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			if workerCount <= 0 {
				workerCount = deps.Config.Checker.WorkerCount
			}

			return runWorkers(cmd.Context(), deps, workerCount)
		},
	}

	cmd.Flags().IntVar(&workerCount, "workers", 0, "number of workers (default from config)")

	return cmd
}

// runWorkers wires the queue consumer to the checker and runs the pool
// until SIGINT or SIGTERM.
func runWorkers(ctx context.Context, deps *common.CommandDeps, workerCount int) error {
	streams, err := queue.NewStreamsClient(queue.StreamsConfig{
		Addr:     deps.Config.Redis.Addr,
		Password: deps.Config.Redis.Password,
		DB:       deps.Config.Redis.DB,
		Prefix:   deps.Config.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer streams.Close()

	consumer, err := queue.NewConsumer(streams, queue.ConsumerConfig{
		ConsumerID: "worker-" + uuid.New().String(),
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if initErr := consumer.Initialize(ctx); initErr != nil {
		return fmt.Errorf("failed to initialize consumer group: %w", initErr)
	}

	deps.Logger.Info("queue consumer ready",
		"group", consumer.ConsumerGroup(),
		"consumer", consumer.ConsumerID(),
	)

	// Workers themselves enqueue follow-up checks for links they discover.
	producer := queue.NewProducer(streams)

	engine, err := common.NewEngine(deps, producer)
	if err != nil {
		return fmt.Errorf("failed to construct engine: %w", err)
	}
	defer engine.Close()

	pool := internalworker.NewPool(consumer, engine.Checker, deps.Logger, internalworker.Config{
		WorkerCount: workerCount,
	})

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return pool.Start(runCtx)
}
