package ai

import (
	"context"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Completion is a rendered, provider-neutral structured request.
type Completion struct {
	// Name identifies the prompt template; providers use it as the schema name.
	Name   string
	System string
	User   string
	Images []Image
	// Schema is the output shape the reply must conform to.
	Schema jsonschema.Definition
}

// Model is a hosted reasoning service able to answer a Completion with JSON text.
type Model interface {
	Complete(ctx context.Context, c Completion) (string, error)
}
