package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"eventcrawl/internal/aicost"
	"eventcrawl/internal/circuitbreaker"
	"eventcrawl/internal/event"
	"eventcrawl/internal/redact"
	"eventcrawl/internal/retry"
)

// aiFields lists the event fields the AI stage is willing to fill, in the
// order they are requested in the prompt.
var aiFields = []string{
	"title", "description", "start_datetime", "end_datetime",
	"location_name", "location_address", "price", "currency",
	"organizer_name", "image_url",
}

// AIConfig configures the AI fallback extraction stage.
type AIConfig struct {
	Enabled         bool
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

// AIStage is the lowest-priority extraction stage, invoked only when the
// custom-selector, structured-data, and heuristic stages leave required
// fields unfilled. It is gated by ENABLE_AI and an available provider key,
// and by an AI-cost budget check before every call, matching
// ai_cost_tracker.py's can_run_operation gate.
//
// Unlike the summarization-only Claude/OpenAI adapters it is grounded on,
// this stage asks the model to return structured JSON rather than prose.
type AIStage struct {
	provider string // "anthropic", "openai", or "" when disabled
	model    string

	anthropicClient anthropic.Client
	openaiClient    *openai.Client

	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	budget         *aicost.Tracker
}

// NewAIStage builds an AIStage. Anthropic is preferred over OpenAI when both
// keys are configured. The stage is a usable no-op (Extract always returns
// nil, nil) when disabled or when neither key is set.
func NewAIStage(cfg AIConfig, budget *aicost.Tracker) *AIStage {
	s := &AIStage{retryConfig: retry.AIAPIConfig(), budget: budget}

	if !cfg.Enabled {
		return s
	}

	switch {
	case cfg.AnthropicAPIKey != "":
		s.provider = "anthropic"
		s.model = string(anthropic.ModelClaudeSonnet4_5_20250929)
		s.anthropicClient = anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
		s.circuitBreaker = circuitbreaker.New(circuitbreaker.ClaudeAPIConfig())
	case cfg.OpenAIAPIKey != "":
		s.provider = "openai"
		s.model = "gpt-4o-mini"
		s.openaiClient = openai.NewClient(cfg.OpenAIAPIKey)
		s.circuitBreaker = circuitbreaker.New(circuitbreaker.OpenAIAPIConfig())
	}

	if s.provider != "" {
		slog.Info("AI extraction stage initialized", slog.String("provider", s.provider), slog.String("model", s.model))
	}

	return s
}

// Enabled reports whether the stage has a usable provider configured.
func (s *AIStage) Enabled() bool {
	return s.provider != ""
}

// Extract asks the configured AI provider to fill fieldsNeeded from pageText,
// gated by the budget tracker. It returns (nil, nil) — not an error — when
// the stage is disabled or the budget is exhausted, since AI is always a
// fallback and its absence must never fail the pipeline.
func (s *AIStage) Extract(ctx context.Context, pageText string, fieldsNeeded []string) (map[string]event.ExtractionResult, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if s.budget != nil && !s.budget.CanProceed() {
		slog.Warn("AI extraction skipped: budget exhausted", slog.String("provider", s.provider))
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	wanted := fieldsNeeded
	if len(wanted) == 0 {
		wanted = aiFields
	}

	requestID := uuid.New().String()
	slog.Debug("AI extraction request started", slog.String("request_id", requestID), slog.String("provider", s.provider))

	var raw string
	var inputTokens, outputTokens int

	retryErr := retry.WithBackoff(ctx, s.retryConfig, func() error {
		cbResult, err := s.circuitBreaker.Execute(func() (interface{}, error) {
			return s.call(ctx, pageText, wanted)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("AI extraction circuit breaker open, request rejected",
					slog.String("request_id", requestID),
					slog.String("provider", s.provider),
					slog.String("state", s.circuitBreaker.State().String()))
				return fmt.Errorf("AI provider unavailable: circuit breaker open")
			}
			return err
		}
		resp := cbResult.(aiCallResult)
		raw = resp.text
		inputTokens = resp.inputTokens
		outputTokens = resp.outputTokens
		return nil
	})

	if retryErr != nil {
		slog.Warn("AI extraction request failed", slog.String("request_id", requestID), slog.String("error", retryErr.Error()))
		return nil, fmt.Errorf("AI extraction failed after retries: %w", retryErr)
	}
	slog.Debug("AI extraction request finished", slog.String("request_id", requestID))

	if s.budget != nil {
		s.budget.Record(aicost.EstimateCost(s.model, inputTokens, outputTokens))
	}

	fields, err := parseAIResponse(raw)
	if err != nil {
		slog.Warn("AI extraction returned unparseable response", slog.String("error", err.Error()))
		return nil, nil
	}

	results := map[string]event.ExtractionResult{}
	for _, field := range wanted {
		value := strings.TrimSpace(fields[field])
		if value == "" || strings.EqualFold(value, "null") || strings.EqualFold(value, "unknown") {
			continue
		}
		set(results, field, value, "ai", "llm:"+s.model)
	}
	return results, nil
}

type aiCallResult struct {
	text         string
	inputTokens  int
	outputTokens int
}

func (s *AIStage) call(ctx context.Context, pageText string, fieldsNeeded []string) (aiCallResult, error) {
	prompt := buildAIPrompt(pageText, fieldsNeeded)

	switch s.provider {
	case "anthropic":
		return s.callAnthropic(ctx, prompt)
	case "openai":
		return s.callOpenAI(ctx, prompt)
	default:
		return aiCallResult{}, fmt.Errorf("AI extraction: no provider configured")
	}
}

func (s *AIStage) callAnthropic(ctx context.Context, prompt string) (aiCallResult, error) {
	message, err := s.anthropicClient.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return aiCallResult{}, fmt.Errorf("claude api error: %w", err)
	}
	if len(message.Content) == 0 {
		return aiCallResult{}, fmt.Errorf("claude api returned empty response")
	}
	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return aiCallResult{}, fmt.Errorf("claude api returned unexpected response type")
	}
	return aiCallResult{
		text:         textBlock.Text,
		inputTokens:  int(message.Usage.InputTokens),
		outputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (s *AIStage) callOpenAI(ctx context.Context, prompt string) (aiCallResult, error) {
	resp, err := s.openaiClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return aiCallResult{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return aiCallResult{}, fmt.Errorf("openai api returned empty response")
	}
	return aiCallResult{
		text:         resp.Choices[0].Message.Content,
		inputTokens:  resp.Usage.PromptTokens,
		outputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// buildAIPrompt asks the model to return a flat JSON object with exactly the
// requested keys, string values only, and "null" for anything not found in
// the page text — trimmed to the same 10,000-char safety limit the
// summarization adapters this stage is grounded on use. pageText is run
// through redact.ForAI first, so emails, phone numbers, IBANs, and credit
// card numbers never reach the provider, matching pii_redactor.py's
// redact_for_ai (location/organizer text is left alone — the model needs
// it to fill those fields).
func buildAIPrompt(pageText string, fieldsNeeded []string) string {
	pageText = redact.ForAI(pageText)
	const maxChars = 10000
	if len(pageText) > maxChars {
		pageText = pageText[:maxChars]
	}
	return fmt.Sprintf(
		"Extract the following fields from this event page text. "+
			"Respond with ONLY a JSON object whose keys are exactly %s, "+
			"string values, using \"null\" for any field not present in the text. "+
			"Dates must be ISO 8601 (YYYY-MM-DDTHH:MM:SS).\n\nTEXT:\n%s",
		strings.Join(fieldsNeeded, ", "), pageText,
	)
}

// parseAIResponse extracts a JSON object from the model's reply, tolerating
// a ```json fenced code block around it.
func parseAIResponse(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(raw, "```")
		raw = strings.TrimSpace(raw)
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("parse AI JSON response: %w", err)
	}

	fields := make(map[string]string, len(generic))
	for k, v := range generic {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case nil:
			fields[k] = ""
		default:
			fields[k] = fmt.Sprintf("%v", val)
		}
	}
	return fields, nil
}
