package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	domai "github.com/bryanwahyu/cowhealth/internal/domain/ai"
	"github.com/bryanwahyu/cowhealth/internal/infra/ai/prompt"
)

// Caller is the structured-call primitive: it renders a prompt template,
// sends it to the model with the declared output shape and decodes the reply.
// Caller holds no per-request state and is safe for concurrent use.
type Caller struct {
	model domai.Model
	log   *zap.Logger
}

func NewCaller(model domai.Model, log *zap.Logger) *Caller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Caller{model: model, log: log}
}

// Call runs tpl with input and stores the decoded reply into output, which
// must be a pointer. Every failure is a *ServiceError.
func (c *Caller) Call(ctx context.Context, tpl *prompt.Template, input, output any) error {
	start := time.Now()
	err := c.call(ctx, tpl, input, output)
	fields := []zap.Field{
		zap.String("prompt", tpl.Name),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		c.log.Warn("structured call failed", append(fields, zap.Error(err))...)
		return domai.NewServiceError(tpl.Name, err)
	}
	c.log.Debug("structured call done", fields...)
	return nil
}

func (c *Caller) call(ctx context.Context, tpl *prompt.Template, input, output any) error {
	data, err := toGeneric(input)
	if err != nil {
		return fmt.Errorf("%w: %v", domai.ErrInvalidInput, err)
	}
	if !jsonschema.Validate(tpl.Input, data) {
		return domai.ErrInvalidInput
	}
	fields, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: input must be an object", domai.ErrInvalidInput)
	}

	var images []domai.Image
	media := func(ref string) (string, error) {
		img, err := domai.ParseImageURI(ref)
		if err != nil {
			return "", err
		}
		images = append(images, img)
		return fmt.Sprintf("[image %d]", len(images)), nil
	}
	user, err := tpl.Render(fields, media)
	if err != nil {
		return fmt.Errorf("%w: %v", domai.ErrInvalidInput, err)
	}

	raw, err := c.model.Complete(ctx, domai.Completion{
		Name:   tpl.Name,
		System: tpl.System,
		User:   user,
		Images: images,
		Schema: tpl.Output,
	})
	if err != nil {
		return err
	}

	raw = stripCodeFence(raw)
	if strings.TrimSpace(raw) == "" {
		return domai.ErrEmptyResponse
	}
	if err := jsonschema.VerifySchemaAndUnmarshal(tpl.Output, []byte(raw), output); err != nil {
		return fmt.Errorf("%w: %v", domai.ErrMalformedResponse, err)
	}
	return nil
}

// toGeneric converts a typed value into the map/slice form the schema validator expects.
func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON replies.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
