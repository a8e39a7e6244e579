// codegen is the queue-driven worker. It subscribes to codegen.requested,
// runs the two-step Bedrock generation for each request, and publishes
// codegen.steps, then codegen.complete or codegen.failed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/forge-ai/stepcoder/shared/codegen"
	"github.com/forge-ai/stepcoder/shared/config"
	"github.com/forge-ai/stepcoder/shared/events"
	"github.com/forge-ai/stepcoder/shared/inference"
	"github.com/forge-ai/stepcoder/shared/logging"
	"github.com/forge-ai/stepcoder/shared/mq"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logging.Setup(cfg.LogFormat, cfg.Debug)

	if cfg.AMQPURL == "" {
		log.Fatal().Str("key", "AMQP_URL").Msg("required env var missing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; cancel() }()

	client, err := inference.NewBedrockClient(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bedrock client")
	}

	broker, err := mq.New(cfg.AMQPURL, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("mq connect")
	}
	defer broker.Close()

	deliveries, err := broker.Subscribe("svc.codegen", cfg.Workers, events.CodegenRequested)
	if err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}

	w := newWorker(broker)
	w.handler = codegen.NewHandler(codegen.NewGenerator(client, codegen.Options{
		StripFences: cfg.StripFences,
		RejectEmpty: cfg.RejectEmpty,
		Observer:    w.publishSteps,
	}))

	log.Info().Str("model", client.ModelID()).Int("workers", cfg.Workers).Msg("codegen service started")

	// Fan-out: every worker reads from the same queue
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error { return w.consume(ctx, deliveries) })
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("codegen worker exited")
	}
}
