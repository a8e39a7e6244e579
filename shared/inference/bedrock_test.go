package inference

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverseAPI struct {
	inputs []*bedrockruntime.ConverseInput
	out    *bedrockruntime.ConverseOutput
	err    error
}

func (f *fakeConverseAPI) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.inputs = append(f.inputs, in)
	return f.out, f.err
}

func replyOutput(blocks ...types.ContentBlock) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: blocks,
		}},
		StopReason: types.StopReasonEndTurn,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(12),
			OutputTokens: aws.Int32(34),
			TotalTokens:  aws.Int32(46),
		},
	}
}

func TestBedrockClient_Converse_SendsFixedParameters(t *testing.T) {
	api := &fakeConverseAPI{out: replyOutput(&types.ContentBlockMemberText{Value: "1. do it"})}
	c := NewBedrockClientWithAPI(api, Params{ModelID: "model-x", MaxTokens: 2048, Temperature: 0.2})

	reply, err := c.Converse(context.Background(), Conversation{UserTurn("hello")})
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, reply.Role)
	assert.Equal(t, "1. do it", FirstText(reply))

	require.Len(t, api.inputs, 1)
	in := api.inputs[0]
	assert.Equal(t, "model-x", aws.ToString(in.ModelId))
	require.Len(t, in.System, 1)
	sys, ok := in.System[0].(*types.SystemContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, SystemPrompt, sys.Value)
	assert.Equal(t, int32(2048), aws.ToInt32(in.InferenceConfig.MaxTokens))
	assert.InDelta(t, 0.2, aws.ToFloat32(in.InferenceConfig.Temperature), 1e-6)

	require.Len(t, in.Messages, 1)
	assert.Equal(t, types.ConversationRoleUser, in.Messages[0].Role)
	require.Len(t, in.Messages[0].Content, 1)
	assert.Equal(t, &types.ContentBlockMemberText{Value: "hello"}, in.Messages[0].Content[0])
}

func TestBedrockClient_Converse_PreservesNativeBlocks(t *testing.T) {
	reasoning := &types.ContentBlockMemberReasoningContent{
		Value: &types.ReasoningContentBlockMemberReasoningText{
			Value: types.ReasoningTextBlock{Text: aws.String("thinking"), Signature: aws.String("sig")},
		},
	}
	text := &types.ContentBlockMemberText{Value: "1. plan"}
	api := &fakeConverseAPI{out: replyOutput(reasoning, text)}
	c := NewBedrockClientWithAPI(api, Params{ModelID: "m"})

	reply, err := c.Converse(context.Background(), Conversation{UserTurn("q")})
	require.NoError(t, err)
	require.Len(t, reply.Content, 2)
	assert.Nil(t, reply.Content[0].Text)
	assert.Equal(t, "1. plan", FirstText(reply))

	_, err = c.Converse(context.Background(), Conversation{UserTurn("q"), reply, UserTurn("next")})
	require.NoError(t, err)

	sent := api.inputs[1].Messages
	require.Len(t, sent, 3)
	assert.Equal(t, types.ConversationRoleAssistant, sent[1].Role)
	require.Len(t, sent[1].Content, 2)
	assert.Same(t, reasoning, sent[1].Content[0])
	assert.Same(t, text, sent[1].Content[1])
}

func TestBedrockClient_Converse_UpstreamError(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
	api := &fakeConverseAPI{err: fmt.Errorf("operation error Bedrock Runtime: Converse, %w", apiErr)}
	c := NewBedrockClientWithAPI(api, Params{ModelID: "m"})

	_, err := c.Converse(context.Background(), Conversation{UserTurn("q")})
	require.Error(t, err)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "ThrottlingException", ue.Code)
	assert.Contains(t, err.Error(), "slow down")
	assert.ErrorIs(t, err, apiErr)
}

func TestBedrockClient_Converse_NonMessageOutput(t *testing.T) {
	api := &fakeConverseAPI{out: &bedrockruntime.ConverseOutput{}}
	c := NewBedrockClientWithAPI(api, Params{ModelID: "m"})

	_, err := c.Converse(context.Background(), Conversation{UserTurn("q")})
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Empty(t, ue.Code)
	assert.Contains(t, err.Error(), "no message")
}
