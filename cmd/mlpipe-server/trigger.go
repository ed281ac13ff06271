package main

import (
	"context"
	"fmt"

	"github.com/shaiso/mlpipe/internal/config"
	"github.com/shaiso/mlpipe/internal/mq"
	"github.com/shaiso/mlpipe/internal/orchestrator"
	"github.com/shaiso/mlpipe/internal/telemetry"
)

// trigger публикует run.trigger для файла, который уже лежит в raw/.
func trigger(ctx context.Context, filename string) error {
	logger := telemetry.SetupLogger()

	name, err := orchestrator.ValidateUpload(filename)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	url := cfg.RabbitMQURL
	if url == "" {
		url = mq.DefaultURL()
	}

	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}

	if err := mq.NewPublisher(conn, logger).PublishRunTrigger(ctx, name); err != nil {
		return err
	}

	logger.Info("run trigger published", "filename", name, "queue", mq.QueueRunsTrigger)
	return nil
}
