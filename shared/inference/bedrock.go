package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/stepcoder/shared/config"
)

const SystemPrompt = "You are a lead software engineer. Be clear and concise."

// ConverseAPI is the slice of the Bedrock runtime client we use.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Params are the fixed per-call settings.
type Params struct {
	ModelID     string
	System      string
	MaxTokens   int32
	Temperature float32
}

// BedrockClient implements Converser on the Bedrock Converse API. It holds no
// per-call state and is safe to share across invocations.
type BedrockClient struct {
	api    ConverseAPI
	params Params
}

var _ Converser = (*BedrockClient)(nil)

// NewBedrockClient loads AWS configuration (region, credentials, retryer,
// HTTP timeouts) and returns a client for cfg.ModelID.
func NewBedrockClient(ctx context.Context, cfg config.Config) (*BedrockClient, error) {
	httpClient := awshttp.NewBuildableClient().
		WithTimeout(cfg.ConnectTimeout+cfg.ReadTimeout).
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = cfg.ConnectTimeout
		}).
		WithTransportOptions(func(tr *http.Transport) {
			tr.TLSHandshakeTimeout = cfg.ConnectTimeout
			tr.ResponseHeaderTimeout = cfg.ReadTimeout
		})

	maxAttempts, maxBackoff := cfg.MaxAttempts, cfg.MaxBackoff
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxAttempts
				if maxBackoff > 0 {
					o.MaxBackoff = maxBackoff
				}
			})
		}),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretKey,
			cfg.SessionToken,
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	api := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewBedrockClientWithAPI(api, Params{
		ModelID:     cfg.ModelID,
		System:      SystemPrompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}), nil
}

func NewBedrockClientWithAPI(api ConverseAPI, params Params) *BedrockClient {
	if params.System == "" {
		params.System = SystemPrompt
	}
	return &BedrockClient{api: api, params: params}
}

func (c *BedrockClient) ModelID() string {
	return c.params.ModelID
}

// Converse sends conv with the fixed system instruction and inference
// parameters. Failures come back as *UpstreamError.
func (c *BedrockClient) Converse(ctx context.Context, conv Conversation) (Turn, error) {
	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.params.ModelID),
		System:   []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: c.params.System}},
		Messages: toMessages(conv),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.params.MaxTokens),
			Temperature: aws.Float32(c.params.Temperature),
		},
	})
	if err != nil {
		return Turn{}, newUpstreamError(err)
	}

	ev := log.Debug().Str("model", c.params.ModelID).Str("stop_reason", string(out.StopReason))
	if out.Usage != nil {
		ev = ev.Int32("input_tokens", aws.ToInt32(out.Usage.InputTokens)).
			Int32("output_tokens", aws.ToInt32(out.Usage.OutputTokens))
	}
	ev.Msg("converse complete")

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return Turn{}, &UpstreamError{Err: fmt.Errorf("converse returned no message (output %T)", out.Output)}
	}
	return fromMessage(msg.Value), nil
}

func toMessages(conv Conversation) []types.Message {
	msgs := make([]types.Message, 0, len(conv))
	for _, t := range conv {
		content := make([]types.ContentBlock, 0, len(t.Content))
		for _, b := range t.Content {
			switch {
			case b.native != nil:
				content = append(content, b.native)
			case b.Text != nil:
				content = append(content, &types.ContentBlockMemberText{Value: *b.Text})
			}
		}
		msgs = append(msgs, types.Message{
			Role:    types.ConversationRole(t.Role),
			Content: content,
		})
	}
	return msgs
}

func fromMessage(m types.Message) Turn {
	t := Turn{Role: Role(m.Role), Content: make([]Block, 0, len(m.Content))}
	for _, cb := range m.Content {
		b := Block{native: cb}
		if txt, ok := cb.(*types.ContentBlockMemberText); ok {
			v := txt.Value
			b.Text = &v
		}
		t.Content = append(t.Content, b)
	}
	return t
}

// UpstreamError is a failed or unusable call to the inference service. Its
// message is the underlying failure's description.
type UpstreamError struct {
	Code string // service error code, e.g. ThrottlingException; empty if none
	Err  error
}

func newUpstreamError(err error) *UpstreamError {
	ue := &UpstreamError{Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ue.Code = apiErr.ErrorCode()
	}
	return ue
}

func (e *UpstreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
