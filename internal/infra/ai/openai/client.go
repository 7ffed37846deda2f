package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/cowhealth/internal/domain/ai"
)

const (
	defaultModel     = "o3-2025-04-16"
	defaultMaxTokens = 2048
)

// Response formats understood by Options.ResponseFormat.
const (
	FormatJSONSchema = "json_schema"
	FormatJSONObject = "json_object"
)

// Options configures the OpenAI-compatible client.
type Options struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
	// ResponseFormat is json_schema (strict structured output) or json_object
	// for compatible endpoints that only support JSON mode; the schema is then
	// appended to the system prompt.
	ResponseFormat string
}

type Client struct {
	*openai.Client
	Model          string
	MaxTokens      int
	ResponseFormat string
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	format := opts.ResponseFormat
	if format == "" {
		format = FormatJSONSchema
	}
	return &Client{
		Client:         openai.NewClientWithConfig(cfg),
		Model:          model,
		MaxTokens:      maxTokens,
		ResponseFormat: format,
	}
}

// Complete sends the rendered prompt with its images and returns the JSON reply.
func (c *Client) Complete(ctx context.Context, comp ai.Completion) (string, error) {
	req, err := c.buildRequest(comp)
	if err != nil {
		return "", err
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		if isQuota(err) {
			return "", fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ai.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) buildRequest(comp ai.Completion) (openai.ChatCompletionRequest, error) {
	system := comp.System
	schema := comp.Schema
	req := openai.ChatCompletionRequest{Model: c.Model}

	switch c.ResponseFormat {
	case FormatJSONObject:
		b, err := json.MarshalIndent(&schema, "", "  ")
		if err != nil {
			return req, fmt.Errorf("marshal output schema: %w", err)
		}
		system += "\n\nThe JSON object must follow this JSON schema:\n" + string(b)
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	default:
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   comp.Name,
				Schema: &schema,
				Strict: true,
			},
		}
	}

	req.Messages = []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		userMessage(comp),
	}

	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(c.Model) {
		req.MaxCompletionTokens = c.MaxTokens
	} else {
		req.MaxTokens = c.MaxTokens
	}
	return req, nil
}

func userMessage(comp ai.Completion) openai.ChatCompletionMessage {
	if len(comp.Images) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: comp.User}
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: comp.User}}
	for _, img := range comp.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img.URI(),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func isQuota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests
}
