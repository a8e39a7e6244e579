// Package inference is the client side of the hosted model: conversation
// types, the Converser abstraction, and its Bedrock implementation.
package inference

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block is one content block of a turn. Text is nil for blocks that carry no
// text (tool use, reasoning, images). Blocks received from the service keep
// their native form so they can be sent back unchanged.
type Block struct {
	Text   *string
	native types.ContentBlock
}

func TextBlock(s string) Block {
	return Block{Text: &s}
}

type Turn struct {
	Role    Role
	Content []Block
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: []Block{TextBlock(text)}}
}

// Conversation is an ordered list of turns, oldest first.
type Conversation []Turn

// Converser submits a conversation and returns the model's reply turn.
// Implementations apply their own fixed system instruction and inference
// parameters.
type Converser interface {
	Converse(ctx context.Context, conv Conversation) (Turn, error)
}

// FirstText returns the text of the first block that has one, or "" when the
// turn has no text-bearing block.
func FirstText(t Turn) string {
	for _, b := range t.Content {
		if b.Text != nil {
			return *b.Text
		}
	}
	return ""
}
