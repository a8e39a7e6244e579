package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/forge-ai/stepcoder/shared/inference"
)

// Request is the invocation payload. A field that is absent or JSON null is
// missing.
type Request struct {
	Message      *string `json:"message"`
	CodeLanguage *string `json:"code_language"`
}

// Response is the invocation result: an HTTP-style status and a JSON body,
// the shape API Gateway proxy integrations expect.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ValidationError reports a missing required parameter.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "Missing required parameter: " + e.Field
}

// Validate checks required fields in contract order: message first.
func (r Request) Validate() error {
	if r.Message == nil {
		return &ValidationError{Field: "message"}
	}
	if r.CodeLanguage == nil {
		return &ValidationError{Field: "code_language"}
	}
	return nil
}

// Handler is the single place where failures become responses.
type Handler struct {
	gen *Generator
}

func NewHandler(gen *Generator) *Handler {
	return &Handler{gen: gen}
}

// Handle decodes a raw invocation event and runs it. It never returns a
// non-nil error; failures are reported through Response.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) (Response, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok && RequestID(ctx) == "" {
		ctx = WithRequestID(ctx, lc.AwsRequestID)
	}

	req, err := DecodeRequest(event)
	if err != nil {
		logger(ctx).Warn().Err(err).Msg("undecodable invocation payload")
		return errorResponse(http.StatusBadRequest, err.Error()), nil
	}
	return h.Run(ctx, req), nil
}

// DecodeRequest parses an invocation event. An empty event decodes to a
// Request with every field missing.
func DecodeRequest(event []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(event)) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(event, &req); err != nil {
		return Request{}, fmt.Errorf("invalid request payload: %w", err)
	}
	return req, nil
}

// Run validates req, generates code and wraps the outcome.
func (h *Handler) Run(ctx context.Context, req Request) Response {
	if err := req.Validate(); err != nil {
		logger(ctx).Warn().Err(err).Msg("rejected request")
		return errorResponse(http.StatusBadRequest, err.Error())
	}

	start := time.Now()
	code, err := h.gen.Generate(ctx, *req.Message, *req.CodeLanguage)
	if err != nil {
		return h.failure(ctx, err)
	}

	logger(ctx).Info().
		Str("language", *req.CodeLanguage).
		Int("code_len", len(code)).
		Dur("took", time.Since(start)).
		Msg("code generated")
	return jsonResponse(http.StatusOK, "code", code)
}

func (h *Handler) failure(ctx context.Context, err error) Response {
	var ue *inference.UpstreamError
	if errors.As(err, &ue) {
		logger(ctx).Error().Err(err).Str("upstream_code", ue.Code).Msg("inference service failure")
		return errorResponse(http.StatusInternalServerError, ue.Error())
	}
	logger(ctx).Error().Err(err).Msg("code generation failed")
	return errorResponse(http.StatusInternalServerError, err.Error())
}

// ErrorText returns the "error" field of an error body, or "" for success
// bodies.
func (r Response) ErrorText() string {
	var b struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal([]byte(r.Body), &b)
	return b.Error
}

// CodeText returns the "code" field of a success body.
func (r Response) CodeText() string {
	var b struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal([]byte(r.Body), &b)
	return b.Code
}

func errorResponse(status int, msg string) Response {
	return jsonResponse(status, "error", msg)
}

// jsonResponse renders a one-field object as {"key": "value"}, spaced the
// way Python's json.dumps spaces it.
func jsonResponse(status int, key, val string) Response {
	return Response{StatusCode: status, Body: "{" + jsonString(key) + ": " + jsonString(val) + "}"}
}

// jsonString quotes s without HTML escaping so generated code keeps its angle
// brackets and ampersands readable.
func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // a Go string always encodes
	return strings.TrimSuffix(buf.String(), "\n")
}
