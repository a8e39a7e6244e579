// Package events defines the message contract published on RabbitMQ.
// The gateway and the codegen worker exchange work only through these types.
package events

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ── Routing keys (RabbitMQ topic exchange: stepcoder.events) ─────────────────
const (
	CodegenRequested = "codegen.requested"
	CodegenSteps     = "codegen.steps"
	CodegenComplete  = "codegen.complete"
	CodegenFailed    = "codegen.failed"
	LogEvent         = "log.event"
)

// ── Envelope wraps every message ─────────────────────────────────────────────

type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Timestamp  time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func Wrap(routingKey string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.New().String(),
		RoutingKey: routingKey,
		Timestamp:  time.Now(),
		Payload:    p,
	})
}

func Unwrap[T any](raw []byte) (*T, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var t T
	return &t, json.Unmarshal(env.Payload, &t)
}

func UnwrapEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	return &env, json.Unmarshal(raw, &env)
}

// ── Payload types ─────────────────────────────────────────────────────────────

// CodegenRequestedPayload mirrors the function's invocation contract. Fields
// are pointers so that an absent field survives the trip through the queue.
type CodegenRequestedPayload struct {
	RequestID    string  `json:"request_id"`
	Message      *string `json:"message,omitempty"`
	CodeLanguage *string `json:"code_language,omitempty"`
}

type CodegenStepsPayload struct {
	RequestID string `json:"request_id"`
	Steps     string `json:"steps"`
}

type CodegenCompletePayload struct {
	RequestID    string `json:"request_id"`
	CodeLanguage string `json:"code_language"`
	Code         string `json:"code"`
}

type CodegenFailedPayload struct {
	RequestID string `json:"request_id"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
}

// LogEventPayload is a human-readable progress or failure line for clients
// watching a request.
type LogEventPayload struct {
	RequestID string         `json:"request_id"`
	Level     string         `json:"level"`
	Step      string         `json:"step"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// FailureLog describes a request that ended without code. Client errors are
// warnings from the validate step; everything else is an error from generate.
func FailureLog(requestID string, status int, errText string) LogEventPayload {
	level, step := "error", "generate"
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		level, step = "warn", "validate"
	}
	return LogEventPayload{
		RequestID: requestID,
		Level:     level,
		Step:      step,
		Message:   errText,
		Data:      map[string]any{"status": status},
	}
}
