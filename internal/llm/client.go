// Package llm drives the language model side of a call over Groq's
// OpenAI-compatible chat completions API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/tools"
)

// ErrToolLoop is returned when the model keeps calling tools past the limit
var ErrToolLoop = errors.New("too many consecutive tool calls")

// Settings configure the chat completions endpoint
type Settings struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	MaxToolTurns int
}

type chatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client produces assistant replies, running tool calls in between. It
// holds no per-call state and is shared by every session.
type Client struct {
	completions  chatCompleter
	model        string
	temperature  float64
	maxToolTurns int
	registry     *tools.Registry
	toolParams   []openai.ChatCompletionToolParam
	logger       zerolog.Logger
}

// NewClient creates a client for the configured endpoint. registry may be nil.
func NewClient(settings Settings, registry *tools.Registry, logger zerolog.Logger) *Client {
	client := openai.NewClient(
		option.WithAPIKey(settings.APIKey),
		option.WithBaseURL(settings.BaseURL),
		option.WithMaxRetries(0),
	)

	maxToolTurns := settings.MaxToolTurns
	if maxToolTurns <= 0 {
		maxToolTurns = 3
	}

	c := &Client{
		completions:  &client.Chat.Completions,
		model:        settings.Model,
		temperature:  settings.Temperature,
		maxToolTurns: maxToolTurns,
		registry:     registry,
		logger:       logger.With().Str("component", "llm").Logger(),
	}
	if registry != nil {
		for _, t := range registry.Tools() {
			c.toolParams = append(c.toolParams, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name(),
					Description: openai.String(t.Description()),
					Parameters:  openai.FunctionParameters(t.Parameters()),
				},
			})
		}
	}
	return c
}

// Reply adds the caller's words to conv and returns what the agent says next
func (c *Client) Reply(ctx context.Context, conv *Conversation, userText string) (string, error) {
	conv.AddUser(userText)
	return c.complete(ctx, conv, nil)
}

// Instruct asks for a reply steered by a one-off instruction that is not kept
// in the history, e.g. the opening greeting
func (c *Client) Instruct(ctx context.Context, conv *Conversation, instruction string) (string, error) {
	return c.complete(ctx, conv, []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(instruction)})
}

func (c *Client) complete(ctx context.Context, conv *Conversation, transient []openai.ChatCompletionMessageParamUnion) (string, error) {
	history := append(conv.snapshot(), transient...)
	var produced []openai.ChatCompletionMessageParamUnion

	for turn := 0; turn <= c.maxToolTurns; turn++ {
		params := openai.ChatCompletionNewParams{
			Messages:    append(append([]openai.ChatCompletionMessageParamUnion{}, history...), produced...),
			Model:       openai.ChatModel(c.model),
			Temperature: openai.Float(c.temperature),
		}
		// tools are withheld on the last round so the model has to answer
		if len(c.toolParams) > 0 && turn < c.maxToolTurns {
			params.Tools = c.toolParams
		}

		completion, err := c.completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("chat completion returned no choices")
		}

		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			reply := strings.TrimSpace(msg.Content)
			produced = append(produced, openai.AssistantMessage(reply))
			conv.commit(produced, reply)
			return reply, nil
		}

		produced = append(produced, msg.ToParam())
		for _, call := range msg.ToolCalls {
			res := c.invoke(ctx, call.Function.Name, call.Function.Arguments)
			if res.Err != nil {
				c.logger.Warn().Err(res.Err).Str("tool", call.Function.Name).Msg("Tool call failed")
			} else {
				c.logger.Debug().Str("tool", call.Function.Name).Msg("Tool call succeeded")
			}
			produced = append(produced, openai.ToolMessage(res.Content(), call.ID))
		}
	}

	return "", ErrToolLoop
}

func (c *Client) invoke(ctx context.Context, name, arguments string) tools.Result {
	if c.registry == nil {
		return tools.Result{Err: fmt.Errorf("%w: %s", tools.ErrUnknownTool, name)}
	}
	return c.registry.Invoke(ctx, name, []byte(arguments))
}
