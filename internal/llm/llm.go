package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/interviewprep/interviewprep/internal/llm/prompts"
	"github.com/interviewprep/interviewprep/internal/metrics"
	"github.com/interviewprep/interviewprep/internal/model"
)

const scoreTemperature = 0.2

// chatAPI is the subset of the OpenAI client used here.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Client scores and transcribes answers through an OpenAI-compatible API.
type Client struct {
	api             chatAPI
	model           string
	transcribeModel string
	variant         prompts.PromptVariant
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName, transcribeModel string, variant prompts.PromptVariant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if transcribeModel == "" {
		transcribeModel = openai.Whisper1
	}
	return &Client{
		api:             openai.NewClientWithConfig(config),
		model:           modelName,
		transcribeModel: transcribeModel,
		variant:         variant,
	}
}

// Ping checks that the endpoint answers and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Score assesses one transcript against the rubric. Transcripts with nothing
// to score get NoResponseResult without an upstream call, and unparsable
// responses get FallbackResult. Only transport errors are returned.
func (c *Client) Score(ctx context.Context, question, transcript, profession string) (model.ScoreResult, error) {
	if !IsMeaningfulTranscript(transcript) {
		metrics.ScoreOutcomes.WithLabelValues("no_response").Inc()
		return NoResponseResult(), nil
	}

	prompt, err := prompts.BuildScorePrompt(c.variant, profession, question, transcript)
	if err != nil {
		return model.ScoreResult{}, fmt.Errorf("build prompt: %w", err)
	}

	timer := metrics.StartTimer("score")
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: scoreTemperature,
	})
	timer.ObserveDuration()
	if err != nil {
		metrics.ScoreOutcomes.WithLabelValues("error").Inc()
		return model.ScoreResult{}, fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		metrics.ScoreOutcomes.WithLabelValues("error").Inc()
		return model.ScoreResult{}, errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	result, err := ParseScore(raw)
	if err != nil {
		slog.Warn("score response not parsable, using placeholder", "error", err)
		metrics.ScoreOutcomes.WithLabelValues("fallback").Inc()
		return FallbackResult(), nil
	}
	metrics.ScoreOutcomes.WithLabelValues("scored").Inc()
	return result, nil
}

// Transcribe sends audio to the speech model and returns the text.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}
	timer := metrics.StartTimer("transcribe")
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		FilePath: filename,
		Reader:   audio,
	})
	timer.ObserveDuration()
	if err != nil {
		return "", fmt.Errorf("transcription API call: %w", err)
	}
	return resp.Text, nil
}
