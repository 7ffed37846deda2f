package prompt

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"text/template"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// MediaFunc embeds the image referenced by a template placeholder and returns
// the text rendered in its place.
type MediaFunc func(ref string) (string, error)

// Template is a named prompt with its declared input and output shapes.
type Template struct {
	Name   string
	System string
	Prompt string
	Input  jsonschema.Definition
	Output jsonschema.Definition

	parsed *template.Template
}

// MustTemplate parses the prompt text; it panics on a malformed template.
func MustTemplate(t Template) *Template {
	parsed, err := template.New(t.Name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"media": noMedia}).
		Parse(t.Prompt)
	if err != nil {
		panic(fmt.Sprintf("prompt %s: %v", t.Name, err))
	}
	t.parsed = parsed
	return &t
}

// Render substitutes the placeholders with fields of data. Image placeholders
// ({{media .field}}) are handed to media.
func (t *Template) Render(data map[string]any, media MediaFunc) (string, error) {
	if media == nil {
		media = noMedia
	}
	tpl, err := t.parsed.Clone()
	if err != nil {
		return "", err
	}
	// Clone drops options.
	tpl.Option("missingkey=error").Funcs(template.FuncMap{"media": media})

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

func noMedia(string) (string, error) {
	return "", fmt.Errorf("template does not accept media")
}

func object(desc string, props map[string]jsonschema.Definition) jsonschema.Definition {
	return jsonschema.Definition{
		Type:                 jsonschema.Object,
		Description:          desc,
		Properties:           props,
		Required:             slices.Sorted(maps.Keys(props)),
		AdditionalProperties: false,
	}
}

// optionalObject declares props but only requires the listed ones.
func optionalObject(desc string, props map[string]jsonschema.Definition, required ...string) jsonschema.Definition {
	d := object(desc, props)
	d.Required = required
	return d
}

func str(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: desc}
}

func boolean(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Boolean, Description: desc}
}

func array(desc string, items jsonschema.Definition) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Array, Description: desc, Items: &items}
}
