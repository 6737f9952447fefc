package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/lexlink/internal/config"
	"github.com/OFFIS-RIT/lexlink/internal/pipeline"
	"github.com/OFFIS-RIT/lexlink/internal/queue"
	"github.com/OFFIS-RIT/lexlink/internal/server"
	mid "github.com/OFFIS-RIT/lexlink/internal/server/middleware"
	"github.com/OFFIS-RIT/lexlink/internal/setup"
	"github.com/OFFIS-RIT/lexlink/internal/util"
	"github.com/OFFIS-RIT/lexlink/pkg/leaselock"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"
	"github.com/OFFIS-RIT/lexlink/pkg/logger/console"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{}))
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	closeLogs, err := setup.InitLogger(cfg, "worker")
	if err != nil {
		logger.Fatal("Could not initialise logging", "err", err)
	}
	defer closeLogs()

	deps, err := setup.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("Could not set up linkage", "err", err)
	}
	defer deps.Close()
	passes := pipeline.FromClient(deps.Client)

	// Init rabbitmq
	conn, err := queue.Init(cfg.RabbitMQ.URL())
	if err != nil {
		logger.Fatal("Could not connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queueName := cfg.RabbitMQ.Queue
	if err := queue.SetupQueues(ch, []string{queueName}); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// HTTP: health, metrics and the operator API
	app := &mid.App{
		Store:     deps.Store,
		Profiles:  deps.Profiles,
		Queue:     ch,
		QueueName: queueName,
		APIKey:    cfg.APIKey,
	}
	e := server.New(app, deps.Registry)
	go func() {
		if err := server.Run(ctx, e, cfg.MetricsPort); err != nil {
			logger.Error("HTTP server stopped", "err", err)
		}
	}()

	if cfg.LinkageCron != "" {
		sched, err := queue.NewScheduler(cfg.LinkageCron, ch, queueName, deps.Countries)
		if err != nil {
			logger.Fatal("Invalid LINKAGE_CRON", "err", err)
		}
		sched.Start()
		defer sched.Stop()
		logger.Info("Scheduled linkage runs", "schedule", cfg.LinkageCron)
	}

	// One message at a time; a run already fans out over pages.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queueName,
		queueName+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queueName, "err", err)
	}

	logger.Info("Listening for messages", "queue", queueName)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Error("Message channel closed", "queue", queueName)
				return
			}
			handle(ctx, passes, deps, consumerCh, msg, queueName, cfg.RabbitMQ.MaxRetries)
		}
	}
}

func handle(
	ctx context.Context,
	passes pipeline.Passes,
	deps *setup.Deps,
	ch *amqp.Channel,
	msg amqp.Delivery,
	queueName string,
	maxRetries int,
) {
	startTime := time.Now()
	err := queue.ProcessLinkageMessage(ctx, passes, deps.Profiles, msg.Body)
	if err != nil {
		if errors.Is(err, leaselock.ErrBusy) {
			logger.Warn("Country busy, retrying later", "queue", queueName)
		} else {
			logger.Error("Error processing message", "queue", queueName, "err", err)
		}
		queue.HandleProcessingError(ch, msg, queueName, maxRetries, err)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("Failed to ack message", "err", err)
	}
	logger.Info("Message processed successfully", "queue", queueName, "duration", time.Since(startTime).Round(time.Millisecond))
}
