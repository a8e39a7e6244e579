package main

import (
	"context"
	"fmt"
	"net/http"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/stepcoder/shared/codegen"
	"github.com/forge-ai/stepcoder/shared/events"
)

const errRedelivered = "request redelivered after a failed publish; not regenerated"

type publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// acker is the part of amqp.Delivery the consume loop needs.
type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type worker struct {
	pub     publisher
	handler *codegen.Handler
}

func newWorker(pub publisher) *worker {
	return &worker{pub: pub}
}

func (w *worker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			w.settle(ctx, &d, d.Body, d.Redelivered)
		}
	}
}

// settle handles one delivery. A request that was answered, even with an
// error, is acknowledged. A failed publish is requeued once: the redelivered
// copy is answered with codegen.failed instead of calling the model again.
func (w *worker) settle(ctx context.Context, d acker, body []byte, redelivered bool) {
	handle := w.handle
	if redelivered {
		handle = w.reject
	}
	if err := handle(ctx, body); err != nil {
		log.Error().Err(err).Bool("redelivered", redelivered).Msg("codegen publish error")
		d.Nack(false, !redelivered)
		return
	}
	d.Ack(false)
}

// reject answers a redelivered request without generating code.
func (w *worker) reject(ctx context.Context, body []byte) error {
	var id string
	if p, err := events.Unwrap[events.CodegenRequestedPayload](body); err == nil {
		id = p.RequestID
	}
	log.Warn().Str("request", id).Msg("redelivered codegen request, not regenerating")
	return w.fail(ctx, id, http.StatusInternalServerError, errRedelivered)
}

func (w *worker) handle(ctx context.Context, body []byte) error {
	p, err := events.Unwrap[events.CodegenRequestedPayload](body)
	if err != nil {
		log.Warn().Err(err).Msg("dropping undecodable codegen request")
		return w.fail(ctx, "", http.StatusBadRequest, fmt.Sprintf("invalid request payload: %v", err))
	}

	ctx = codegen.WithRequestID(ctx, p.RequestID)
	log.Info().Str("request", p.RequestID).Msg("generating code")

	resp := w.handler.Run(ctx, codegen.Request{Message: p.Message, CodeLanguage: p.CodeLanguage})
	if resp.StatusCode != http.StatusOK {
		return w.fail(ctx, p.RequestID, resp.StatusCode, resp.ErrorText())
	}

	return w.publish(ctx, events.CodegenComplete, events.CodegenCompletePayload{
		RequestID:    p.RequestID,
		CodeLanguage: *p.CodeLanguage,
		Code:         resp.CodeText(),
	})
}

// publishSteps is the generator Observer: it forwards the plan so clients can
// show progress before the code arrives.
func (w *worker) publishSteps(ctx context.Context, stage, text string) {
	if stage != codegen.StageSteps {
		return
	}
	id := codegen.RequestID(ctx)
	if err := w.publish(ctx, events.CodegenSteps, events.CodegenStepsPayload{RequestID: id, Steps: text}); err != nil {
		log.Warn().Err(err).Str("request", id).Msg("publish steps")
	}
}

// fail publishes a log line for watchers, then the codegen.failed outcome.
// Only the outcome's publish error is returned.
func (w *worker) fail(ctx context.Context, id string, status int, msg string) error {
	if err := w.publish(ctx, events.LogEvent, events.FailureLog(id, status, msg)); err != nil {
		log.Warn().Err(err).Str("request", id).Msg("publish log event")
	}
	return w.publish(ctx, events.CodegenFailed, events.CodegenFailedPayload{
		RequestID: id,
		Status:    status,
		Error:     msg,
	})
}

func (w *worker) publish(ctx context.Context, key string, payload any) error {
	b, err := events.Wrap(key, payload)
	if err != nil {
		return err
	}
	return w.pub.Publish(ctx, key, b)
}
