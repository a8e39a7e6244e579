// Package codegen turns a natural-language request into source code with a
// plan-then-generate exchange against an inference.Converser, and exposes the
// function's invocation contract as Handler.
package codegen

import (
	"context"
	"errors"
	"fmt"

	"github.com/forge-ai/stepcoder/shared/inference"
)

// ErrEmptyCode is returned when RejectEmpty is set and the final reply holds
// no text.
var ErrEmptyCode = errors.New("model returned no code")

// Stage names passed to Observer.
const (
	StageSteps = "steps.ready"
	StageCode  = "code.ready"
)

// Observer is notified after each successful model call with the reply text.
type Observer func(ctx context.Context, stage, text string)

type Options struct {
	StripFences bool
	RejectEmpty bool
	Observer    Observer
}

type Generator struct {
	conv inference.Converser
	opts Options
}

func NewGenerator(conv inference.Converser, opts Options) *Generator {
	return &Generator{conv: conv, opts: opts}
}

// Generate asks the model for a numbered plan, appends the reply to the
// conversation, then asks for the code. The calls are strictly sequential and
// a failure on the first aborts before the second is made.
func (g *Generator) Generate(ctx context.Context, message, language string) (string, error) {
	conv := inference.Conversation{inference.UserTurn(buildStepsPrompt(message, language))}

	steps, err := g.conv.Converse(ctx, conv)
	if err != nil {
		return "", fmt.Errorf("step decomposition: %w", err)
	}
	logger(ctx).Debug().Str("language", language).Int("blocks", len(steps.Content)).Msg("steps received")
	g.notify(ctx, StageSteps, inference.FirstText(steps))

	conv = append(conv, steps, inference.UserTurn(buildCodePrompt(language)))

	reply, err := g.conv.Converse(ctx, conv)
	if err != nil {
		return "", fmt.Errorf("code generation: %w", err)
	}

	code := inference.FirstText(reply)
	if g.opts.StripFences {
		code = stripFences(code)
	}
	if code == "" {
		if g.opts.RejectEmpty {
			return "", ErrEmptyCode
		}
		logger(ctx).Warn().Str("language", language).Msg("model reply has no text, returning empty code")
	}
	g.notify(ctx, StageCode, code)
	return code, nil
}

func (g *Generator) notify(ctx context.Context, stage, text string) {
	if g.opts.Observer != nil {
		g.opts.Observer(ctx, stage, text)
	}
}
