// Package llmclassifier provides a person extractor that asks an
// OpenAI-compatible LLM (e.g. Ollama with qwen3:4b) for the people named in
// a text.
//
// We ask the model to return the names verbatim rather than byte offsets,
// because small models get offsets wrong. Go code locates all occurrences in
// the original text itself.
package llmclassifier

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/gonkalabs/piiscan/internal/sanitize"
)

const systemPrompt = `Extract the names of people from the text. Return a JSON array of the exact strings as they appear. Return [] if no person is named.

Include first names, last names and full names (e.g. John, Smith, John Smith, Иван Иванов).

Do NOT include: blocks of █ characters, company or product names, city or street names, titles on their own (Dr, Mr), email addresses.

Return ONLY a valid JSON array. No explanation.

Examples:
Input: "please forward this to Maria Garcia"
Output: ["Maria Garcia"]

Input: "call Dr. Chen tomorrow, John will join"
Output: ["Chen", "John"]

Input: "how are you?"
Output: []`

// Classifier calls an LLM to detect person names.
type Classifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// New creates a Classifier.
// baseURL is the Ollama (or any OpenAI-compatible) server without the /v1
// suffix, e.g. "http://ollama:11434". apiKey may be empty for local servers.
func New(baseURL, model, apiKey string) *Classifier {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1") + "/v1"
	return newWithClient(openai.NewClientWithConfig(cfg), model)
}

func newWithClient(client *openai.Client, model string) *Classifier {
	return &Classifier{client: client, model: model, timeout: 120 * time.Second}
}

func (c *Classifier) Name() string { return "llm:" + c.model }

// Classify sends text to the LLM and returns person spans.
// It is safe for concurrent use.
func (c *Classifier) Classify(ctx context.Context, text string) ([]sanitize.Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	log.Debug().Str("model", c.model).Int("text_len", len(text)).Msg("llmclassifier: classifying")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			// /no_think is Qwen3's control token to skip thinking and go straight to the answer.
			{Role: openai.ChatMessageRoleUser, Content: "Text to classify:\n" + text + "\n/no_think"},
		},
		Temperature: 0,
		MaxTokens:   2000,
	})
	if err != nil {
		log.Warn().Err(err).Msg("llmclassifier: LLM unreachable, skipping")
		return nil, nil
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		log.Warn().Msg("llmclassifier: response truncated by token limit")
	}

	content := stripThinkBlock(strings.TrimSpace(choice.Message.Content))
	content = stripCodeFence(content)
	// Last resort: try to pull a JSON array out of wherever it is in the text.
	if !strings.HasPrefix(content, "[") {
		content = extractJSONArray(content)
	}

	var names []string
	if err := json.Unmarshal([]byte(content), &names); err != nil {
		log.Warn().Err(err).Msg("llmclassifier: could not parse LLM output")
		return nil, nil
	}

	spans := locate(text, names)
	if len(spans) > 0 {
		log.Debug().Int("count", len(spans)).Int("values", len(names)).Msg("llmclassifier: detected people")
	}
	return spans, nil
}

// locate finds every occurrence of each value in text, skipping matches that
// land in the middle of a longer word.
func locate(text string, values []string) []sanitize.Span {
	var spans []sanitize.Span
	for _, val := range values {
		val = strings.TrimSpace(val)
		if val == "" || strings.Contains(val, sanitize.Block) {
			continue
		}
		start := 0
		for {
			idx := strings.Index(text[start:], val)
			if idx < 0 {
				break
			}
			abs := start + idx
			end := abs + len(val)
			start = end
			if isInsideToken(text, abs, end) {
				continue
			}
			spans = append(spans, sanitize.Span{
				Start: abs,
				End:   end,
				Label: sanitize.LabelPerson,
				Score: 1.0,
			})
		}
	}
	return spans
}

// isInsideToken reports whether span [start,end) sits inside a larger word.
// For example "Ann" inside "Annual" would return true.
func isInsideToken(text string, start, end int) bool {
	if start > 0 && !isBoundary(text[start-1]) {
		return true
	}
	if end < len(text) && !isBoundary(text[end]) {
		return true
	}
	return false
}

// isBoundary reports whether byte b is a word-boundary character.
func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '<', '>', ',', ';', '(', ')', '[', ']', '{', '}', '"', '\'', '`', '.', '!', '?', ':':
		return true
	}
	return false
}

// extractJSONArray finds the first [...] substring in s.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "]")
	if end < start {
		return s
	}
	return s[start : end+1]
}

// stripThinkBlock removes Qwen3's <think>...</think> block that appears before
// the actual answer when thinking mode is active.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return s
	}
	end := strings.Index(s, close)
	if end < 0 {
		// Unclosed block - drop everything from <think> onwards.
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrappers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

var _ sanitize.Classifier = (*Classifier)(nil)
