// function is the AWS Lambda entry point. Each invocation carries
// {"message", "code_language"} and returns {"statusCode", "body"}.
// The Bedrock client is built once at cold start and reused.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/stepcoder/shared/codegen"
	"github.com/forge-ai/stepcoder/shared/config"
	"github.com/forge-ai/stepcoder/shared/inference"
	"github.com/forge-ai/stepcoder/shared/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	logging.Setup(cfg.LogFormat, cfg.Debug)

	client, err := inference.NewBedrockClient(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bedrock client")
	}

	h := codegen.NewHandler(codegen.NewGenerator(client, codegen.Options{
		StripFences: cfg.StripFences,
		RejectEmpty: cfg.RejectEmpty,
	}))

	log.Info().
		Str("region", cfg.Region).
		Str("model", client.ModelID()).
		Int("max_attempts", cfg.MaxAttempts).
		Dur("read_timeout", cfg.ReadTimeout).
		Msg("function ready")

	lambda.Start(h.Handle)
}
