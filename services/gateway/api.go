package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/stepcoder/shared/codegen"
	"github.com/forge-ai/stepcoder/shared/events"
	"github.com/forge-ai/stepcoder/shared/mq"
)

const version = "0.3.0"

// maxBody caps request bodies; prompts are short.
const maxBody = 1 << 20

type publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type gateway struct {
	handler *codegen.Handler
	broker  publisher
	hub     *hub
}

func newGateway(h *hub) *gateway {
	return &gateway{hub: h}
}

func (gw *gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", gw.generate)
	mux.HandleFunc("POST /api/jobs", gw.createJob)
	mux.HandleFunc("GET /api/status", gw.status)
	mux.HandleFunc("/ws", gw.hub.serveWS)
	return cors(mux)
}

// generate runs the invocation contract in-process and mirrors its status
// code and body onto the HTTP response.
func (gw *gateway) generate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		jsonErr(w, "invalid body", http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	ctx := codegen.WithRequestID(r.Context(), id)
	resp, _ := gw.handler.Handle(ctx, raw)

	if resp.StatusCode == http.StatusOK {
		var language string
		if req, err := codegen.DecodeRequest(raw); err == nil && req.CodeLanguage != nil {
			language = *req.CodeLanguage
		}
		gw.relay(events.CodegenComplete, events.CodegenCompletePayload{RequestID: id, CodeLanguage: language, Code: resp.CodeText()})
	} else {
		gw.relay(events.LogEvent, events.FailureLog(id, resp.StatusCode, resp.ErrorText()))
		gw.relay(events.CodegenFailed, events.CodegenFailedPayload{RequestID: id, Status: resp.StatusCode, Error: resp.ErrorText()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", id)
	w.WriteHeader(resp.StatusCode)
	io.WriteString(w, resp.Body)
}

func (gw *gateway) createJob(w http.ResponseWriter, r *http.Request) {
	if gw.broker == nil {
		jsonErr(w, "async generation unavailable: no message broker configured", http.StatusServiceUnavailable)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		jsonErr(w, "invalid body", http.StatusBadRequest)
		return
	}
	req, err := codegen.DecodeRequest(raw)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := events.CodegenRequestedPayload{
		RequestID:    uuid.New().String(),
		Message:      req.Message,
		CodeLanguage: req.CodeLanguage,
	}
	b, _ := events.Wrap(events.CodegenRequested, p)
	if err := gw.broker.Publish(r.Context(), events.CodegenRequested, b); err != nil {
		log.Error().Err(err).Str("request", p.RequestID).Msg("queue publish failed")
		jsonErr(w, "queue publish failed", http.StatusInternalServerError)
		return
	}

	jsonOK(w, map[string]any{
		"request_id": p.RequestID,
		"status":     "queued",
	}, http.StatusAccepted)
}

func (gw *gateway) status(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]any{
		"status":   "online",
		"clients":  gw.hub.clientCount(),
		"version":  version,
		"async":    gw.broker != nil,
		"exchange": mq.Exchange,
	}, http.StatusOK)
}

// relayStage is the generator Observer for synchronous runs.
func (gw *gateway) relayStage(ctx context.Context, stage, text string) {
	if stage != codegen.StageSteps {
		return
	}
	gw.relay(events.CodegenSteps, events.CodegenStepsPayload{RequestID: codegen.RequestID(ctx), Steps: text})
}

func (gw *gateway) relay(key string, payload any) {
	b, err := events.Wrap(key, payload)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("wrap relay event")
		return
	}
	gw.hub.broadcast(b)
}

// relayKeys are the worker events forwarded to WebSocket clients.
// codegen.requested is left out: it carries the user's prompt.
var relayKeys = []string{
	events.CodegenSteps,
	events.CodegenComplete,
	events.CodegenFailed,
	events.LogEvent,
}

// subscribeEvents relays worker events from the broker to WebSocket clients.
func (gw *gateway) subscribeEvents(ctx context.Context, broker *mq.Broker) {
	deliveries, err := broker.Subscribe("gw.relay", 16, relayKeys...)
	if err != nil {
		log.Error().Err(err).Msg("subscribe failed")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			gw.hub.broadcast(d.Body)
			d.Ack(false)
		}
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
