package responder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	potel "github.com/gonkalabs/piiscan/internal/otel"
)

var tracer = potel.Tracer("github.com/gonkalabs/piiscan/internal/responder")

const defaultSystemPrompt = "You are a workflow automation assistant. Some details in the request have been replaced with █ characters; do not try to guess them. Answer briefly with concrete automation recommendations."

// TimeoutLLMCall bounds a single completion request.
const TimeoutLLMCall = 60 * time.Second

// OpenAI asks an OpenAI-compatible chat endpoint for the reply and falls back
// to another Responder when the call fails.
type OpenAI struct {
	client   *openai.Client
	model    string
	prompt   string
	fallback Responder
}

// NewOpenAI creates a responder for baseURL (scheme+host, optionally ending
// in /v1). A nil fallback means errors are returned to the caller.
func NewOpenAI(baseURL, model, apiKey string, fallback Responder) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1") + "/v1"
	}
	return newOpenAIWithClient(openai.NewClientWithConfig(cfg), model, fallback)
}

func newOpenAIWithClient(client *openai.Client, model string, fallback Responder) *OpenAI {
	return &OpenAI{client: client, model: model, prompt: defaultSystemPrompt, fallback: fallback}
}

func (o *OpenAI) Name() string { return "openai:" + o.model }

func (o *OpenAI) Respond(ctx context.Context, sanitized string) (string, error) {
	reply, err := o.generate(ctx, sanitized)
	if err == nil {
		return reply, nil
	}
	if o.fallback == nil {
		return "", err
	}
	log.Warn().Err(err).Str("model", o.model).Msg("responder: completion failed, using fallback")
	return o.fallback.Respond(ctx, sanitized)
}

func (o *OpenAI) generate(ctx context.Context, sanitized string) (string, error) {
	ctx, span := tracer.Start(ctx, "responder.generate",
		trace.WithAttributes(
			attribute.String("gen_ai.system", "openai"),
			attribute.String("gen_ai.request.model", o.model),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.prompt},
			{Role: openai.ChatMessageRoleUser, Content: sanitized},
		},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("responder: no choices returned")
	}
	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
	)
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("responder: empty reply")
	}
	return reply, nil
}
