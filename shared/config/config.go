// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRegion  = "eu-north-1"
	DefaultModelID = "qwen.qwen3-coder-480b-a35b-v1:0"
)

type Config struct {
	// Bedrock
	Region         string
	Endpoint       string
	ModelID        string
	AccessKeyID    string
	SecretKey      string
	SessionToken   string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxAttempts    int
	MaxBackoff     time.Duration
	MaxTokens      int32
	Temperature    float32

	// Generation
	StripFences bool
	RejectEmpty bool

	// Surfaces
	AMQPURL   string
	Port      string
	Workers   int
	LogFormat string
	Debug     bool
}

func FromEnv() Config {
	return Config{
		Region:         env("BEDROCK_REGION", DefaultRegion),
		Endpoint:       env("BEDROCK_ENDPOINT", ""),
		ModelID:        env("BEDROCK_MODEL_ID", DefaultModelID),
		AccessKeyID:    env("BEDROCK_ACCESS_KEY_ID", ""),
		SecretKey:      env("BEDROCK_SECRET_ACCESS_KEY", ""),
		SessionToken:   env("BEDROCK_SESSION_TOKEN", ""),
		ConnectTimeout: envDuration("BEDROCK_CONNECT_TIMEOUT", 5*time.Second),
		ReadTimeout:    envDuration("BEDROCK_READ_TIMEOUT", 300*time.Second),
		MaxAttempts:    envInt("BEDROCK_MAX_ATTEMPTS", 3),
		MaxBackoff:     envDuration("BEDROCK_MAX_BACKOFF", 20*time.Second),
		MaxTokens:      int32(envInt("MAX_TOKENS", 2048)),
		Temperature:    envFloat("TEMPERATURE", 0.2),
		StripFences:    envBool("STRIP_FENCES", false),
		RejectEmpty:    envBool("REJECT_EMPTY_CODE", false),
		AMQPURL:        env("AMQP_URL", ""),
		Port:           env("PORT", "8080"),
		Workers:        envInt("WORKERS", 3),
		LogFormat:      env("LOG_FORMAT", defaultLogFormat()),
		Debug:          env("DEBUG", "") == "1",
	}
}

// Lambda ships stdout to CloudWatch, so JSON lines are the default there.
func defaultLogFormat() string {
	if InLambda() {
		return "json"
	}
	return "console"
}

// InLambda reports whether the process runs inside the Lambda runtime.
func InLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		n, _ := strconv.Atoi(v)
		if n > 0 {
			return n
		}
	}
	return def
}

func envFloat(k string, def float32) float32 {
	if v := os.Getenv(k); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err == nil && f >= 0 {
			return float32(f)
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// envDuration accepts Go durations ("5s") or a bare number of seconds.
func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
