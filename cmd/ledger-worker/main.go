// ledger-worker consumes expense lifecycle events from the queue and
// logs them in structured form for operators. It is the consuming end of
// the optional event stream the API server publishes to.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"expensely/internal/amqp"
	"expensely/internal/config"
	applog "expensely/internal/log"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL must be set for the worker")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	deliveries, err := client.Consume()
	if err != nil {
		logger.Error("Failed to start consumer", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case d, ok := <-deliveries:
				if !ok {
					logger.Warn("Delivery channel closed")
					return nil
				}

				event, err := amqp.ExpenseEventFromJSON(d.Body)
				if err != nil {
					logger.Error("Dropping malformed event", "error", err)
					_ = d.Nack(false, false)
					continue
				}

				logger.Info("Expense event",
					"action", string(event.Action),
					"expense_id", event.ExpenseID,
					"user_id", event.UserID,
					"timestamp", event.Timestamp)
				_ = d.Ack(false)
			}
		}
	})

	logger.Info("Worker started", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
