// gateway is the HTTP surface for local and container deployments.
// POST /api/generate runs the function contract synchronously; POST /api/jobs
// queues the request for the codegen worker over RabbitMQ. Progress events
// from both paths are relayed to browsers over WebSocket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/stepcoder/shared/codegen"
	"github.com/forge-ai/stepcoder/shared/config"
	"github.com/forge-ai/stepcoder/shared/inference"
	"github.com/forge-ai/stepcoder/shared/logging"
	"github.com/forge-ai/stepcoder/shared/mq"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logging.Setup(cfg.LogFormat, cfg.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; cancel() }()

	client, err := inference.NewBedrockClient(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bedrock client")
	}

	gw := newGateway(newHub())
	gw.handler = codegen.NewHandler(codegen.NewGenerator(client, codegen.Options{
		StripFences: cfg.StripFences,
		RejectEmpty: cfg.RejectEmpty,
		Observer:    gw.relayStage,
	}))

	if cfg.AMQPURL != "" {
		broker, err := mq.New(cfg.AMQPURL, 0)
		if err != nil {
			log.Fatal().Err(err).Msg("mq connect")
		}
		defer broker.Close()
		gw.broker = broker
		go gw.subscribeEvents(ctx, broker)
	} else {
		log.Warn().Msg("AMQP_URL not set, /api/jobs disabled")
	}

	go gw.hub.run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("port", cfg.Port).Str("model", client.ModelID()).Bool("async", gw.broker != nil).Msg("gateway online")

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
