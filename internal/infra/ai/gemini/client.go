package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"google.golang.org/genai"

	"github.com/bryanwahyu/cowhealth/internal/domain/ai"
	"github.com/bryanwahyu/cowhealth/internal/middleware"
)

const (
	defaultModel     = "gemini-2.0-flash"
	defaultMaxTokens = 2048
	maxImageBytes    = 10 << 20
	maxRedirects     = 5
)

// URLCheck refuses image URLs the server must not fetch.
type URLCheck func(ctx context.Context, rawURL string) error

// Options configures the Gemini client.
type Options struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// URLCheck runs before the image fetch and on every redirect; nil uses
	// middleware.ValidateImageURL.
	URLCheck  URLCheck
}

// Client answers completions with Gemini structured output.
type Client struct {
	client    *genai.Client
	model     string
	maxTokens int32
	http      *http.Client
	urlCheck  URLCheck
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	check := opts.URLCheck
	if check == nil {
		check = middleware.ValidateImageURL
	}
	fetchTimeout := 30 * time.Second
	if opts.Timeout > 0 {
		fetchTimeout = opts.Timeout
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		client:    cli,
		model:     model,
		maxTokens: int32(maxTokens),
		http:      imageHTTPClient(fetchTimeout, check),
		urlCheck:  check,
	}, nil
}

// imageHTTPClient re-checks every redirect target so a public URL cannot
// bounce the fetch to a private host.
func imageHTTPClient(timeout time.Duration, check URLCheck) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if err := check(req.Context(), req.URL.String()); err != nil {
				return fmt.Errorf("redirect refused: %w", err)
			}
			return nil
		},
	}
}

// Complete sends the rendered prompt with inline image parts and returns the JSON reply.
func (c *Client) Complete(ctx context.Context, comp ai.Completion) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(comp.User)}
	for _, img := range comp.Images {
		part, err := c.imagePart(ctx, img)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(comp.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    toSchema(comp.Schema),
		MaxOutputTokens:   c.maxTokens,
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		if isQuota(err) {
			return "", fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}

// imagePart inlines the image; remote URLs are downloaded first because the
// Gemini API only accepts file URIs it hosts.
func (c *Client) imagePart(ctx context.Context, img ai.Image) (*genai.Part, error) {
	if img.Inline() {
		return genai.NewPartFromBytes(img.Data, img.MIMEType), nil
	}
	if err := c.urlCheck(ctx, img.URL); err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image: status %d", res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	mime := res.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return genai.NewPartFromBytes(data, mime), nil
}

// toSchema converts an output shape into Gemini's OpenAPI-style schema.
func toSchema(d jsonschema.Definition) *genai.Schema {
	s := &genai.Schema{Description: d.Description}
	switch d.Type {
	case jsonschema.Object:
		s.Type = genai.TypeObject
		s.Required = d.Required
		if len(d.Properties) > 0 {
			s.Properties = make(map[string]*genai.Schema, len(d.Properties))
			for name, prop := range d.Properties {
				s.Properties[name] = toSchema(prop)
			}
			s.PropertyOrdering = d.Required
		}
	case jsonschema.Array:
		s.Type = genai.TypeArray
		if d.Items != nil {
			s.Items = toSchema(*d.Items)
		}
	case jsonschema.Boolean:
		s.Type = genai.TypeBoolean
	case jsonschema.Integer:
		s.Type = genai.TypeInteger
	case jsonschema.Number:
		s.Type = genai.TypeNumber
	default:
		s.Type = genai.TypeString
	}
	return s
}

func isQuota(err error) bool {
	var apiErr genai.APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests
}
