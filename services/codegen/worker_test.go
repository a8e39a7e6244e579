package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-ai/stepcoder/shared/codegen"
	"github.com/forge-ai/stepcoder/shared/events"
	"github.com/forge-ai/stepcoder/shared/inference"
)

type published struct {
	key  string
	body []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, key string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{key: key, body: body})
	return nil
}

func (f *fakePublisher) keys() []string {
	var out []string
	for _, m := range f.msgs {
		out = append(out, m.key)
	}
	return out
}

type fakeAcker struct{ acked, nacked, requeued bool }

func (a *fakeAcker) Ack(bool) error { a.acked = true; return nil }
func (a *fakeAcker) Nack(_, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

type scriptedConverser struct {
	replies []string
	err     error
	calls   int
}

func (s *scriptedConverser) Converse(context.Context, inference.Conversation) (inference.Turn, error) {
	s.calls++
	if s.err != nil {
		return inference.Turn{}, s.err
	}
	text := s.replies[s.calls-1]
	return inference.Turn{Role: inference.RoleAssistant, Content: []inference.Block{inference.TextBlock(text)}}, nil
}

func newTestWorker(pub *fakePublisher, conv inference.Converser) *worker {
	w := newWorker(pub)
	w.handler = codegen.NewHandler(codegen.NewGenerator(conv, codegen.Options{Observer: w.publishSteps}))
	return w
}

func request(t *testing.T, id string, msg, lang *string) []byte {
	t.Helper()
	b, err := events.Wrap(events.CodegenRequested, events.CodegenRequestedPayload{
		RequestID: id, Message: msg, CodeLanguage: lang,
	})
	require.NoError(t, err)
	return b
}

func str(s string) *string { return &s }

func TestWorker_Complete(t *testing.T) {
	pub := &fakePublisher{}
	w := newTestWorker(pub, &scriptedConverser{replies: []string{"1. reverse", "def reverse(s): return s[::-1]"}})

	ack := &fakeAcker{}
	w.settle(context.Background(), ack, request(t, "req-1", str("reverse a string"), str("Python")), false)
	assert.True(t, ack.acked)

	require.Equal(t, []string{events.CodegenSteps, events.CodegenComplete}, pub.keys())

	steps, err := events.Unwrap[events.CodegenStepsPayload](pub.msgs[0].body)
	require.NoError(t, err)
	assert.Equal(t, "req-1", steps.RequestID)
	assert.Equal(t, "1. reverse", steps.Steps)

	done, err := events.Unwrap[events.CodegenCompletePayload](pub.msgs[1].body)
	require.NoError(t, err)
	assert.Equal(t, "req-1", done.RequestID)
	assert.Equal(t, "Python", done.CodeLanguage)
	assert.Equal(t, "def reverse(s): return s[::-1]", done.Code)
}

func TestWorker_ValidationFailure(t *testing.T) {
	pub := &fakePublisher{}
	conv := &scriptedConverser{}
	w := newTestWorker(pub, conv)

	ack := &fakeAcker{}
	w.settle(context.Background(), ack, request(t, "req-2", str("m"), nil), false)
	assert.True(t, ack.acked)
	assert.Zero(t, conv.calls)

	require.Equal(t, []string{events.LogEvent, events.CodegenFailed}, pub.keys())
	failed, err := events.Unwrap[events.CodegenFailedPayload](pub.msgs[1].body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, failed.Status)
	assert.Equal(t, "Missing required parameter: code_language", failed.Error)

	line, err := events.Unwrap[events.LogEventPayload](pub.msgs[0].body)
	require.NoError(t, err)
	assert.Equal(t, "req-2", line.RequestID)
	assert.Equal(t, "warn", line.Level)
	assert.Equal(t, "validate", line.Step)
	assert.Equal(t, failed.Error, line.Message)
}

func TestWorker_UpstreamFailure(t *testing.T) {
	pub := &fakePublisher{}
	w := newTestWorker(pub, &scriptedConverser{err: &inference.UpstreamError{Err: errors.New("throttled")}})

	ack := &fakeAcker{}
	w.settle(context.Background(), ack, request(t, "req-3", str("m"), str("Go")), false)
	assert.True(t, ack.acked)

	require.Equal(t, []string{events.LogEvent, events.CodegenFailed}, pub.keys())
	failed, err := events.Unwrap[events.CodegenFailedPayload](pub.msgs[1].body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, failed.Status)
	assert.Equal(t, "throttled", failed.Error)
}

func TestWorker_UndecodableMessage(t *testing.T) {
	pub := &fakePublisher{}
	w := newTestWorker(pub, &scriptedConverser{})

	ack := &fakeAcker{}
	w.settle(context.Background(), ack, []byte("{broken"), false)
	assert.True(t, ack.acked)
	assert.Equal(t, []string{events.LogEvent, events.CodegenFailed}, pub.keys())
}

func TestWorker_PublishFailureRequeues(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	conv := &scriptedConverser{replies: []string{"1.", "code"}}
	w := newTestWorker(pub, conv)

	ack := &fakeAcker{}
	w.settle(context.Background(), ack, request(t, "req-4", str("m"), str("Go")), false)
	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
	assert.Equal(t, 2, conv.calls)
}

func TestWorker_RedeliveryDoesNotRegenerate(t *testing.T) {
	pub := &fakePublisher{}
	conv := &scriptedConverser{replies: []string{"1.", "code"}}
	w := newTestWorker(pub, conv)

	ack := &fakeAcker{}
	w.settle(context.Background(), ack, request(t, "req-5", str("m"), str("Go")), true)
	assert.True(t, ack.acked)
	assert.Zero(t, conv.calls)

	require.Equal(t, []string{events.LogEvent, events.CodegenFailed}, pub.keys())
	failed, err := events.Unwrap[events.CodegenFailedPayload](pub.msgs[1].body)
	require.NoError(t, err)
	assert.Equal(t, "req-5", failed.RequestID)
	assert.Equal(t, http.StatusInternalServerError, failed.Status)
	assert.Equal(t, errRedelivered, failed.Error)
}

func TestWorker_RedeliveryPublishFailureDrops(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	conv := &scriptedConverser{replies: []string{"1.", "code"}}
	w := newTestWorker(pub, conv)

	ack := &fakeAcker{}
	w.settle(context.Background(), ack, request(t, "req-6", str("m"), str("Go")), true)
	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
	assert.Zero(t, conv.calls)
}
