package prompt

import (
	"encoding/json"
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesFields(t *testing.T) {
	out, err := SuggestTreatment.Render(map[string]any{"disease": "Ringworm"}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Disease: Ringworm")
}

func TestRenderMissingField(t *testing.T) {
	out, err := SuggestTreatment.Render(map[string]any{}, nil)
	assert.ErrorContains(t, err, "suggestTreatmentPrompt")
	assert.NotContains(t, out, "<no value>")
}

func TestRenderMissingFieldAlongsideMedia(t *testing.T) {
	media := func(string) (string, error) { return "<img>", nil }

	_, err := InitialAnalysis.Render(map[string]any{"imageUrl": "https://example.com/cow.jpg"}, media)
	assert.ErrorContains(t, err, "map has no entry for key")
}

func TestRenderMedia(t *testing.T) {
	var refs []string
	media := func(ref string) (string, error) {
		refs = append(refs, ref)
		return "<img>", nil
	}

	out, err := InitialAnalysis.Render(map[string]any{"imageUrl": "https://example.com/cow.jpg", "prompt": "look"}, media)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/cow.jpg"}, refs)
	assert.Contains(t, out, "Based on the image <img> and the following prompt: look")
}

func TestRenderWithoutMediaFuncFails(t *testing.T) {
	_, err := InitialAnalysis.Render(map[string]any{"imageUrl": "https://example.com/cow.jpg", "prompt": "look"}, nil)
	assert.Error(t, err)
}

func TestInitialAnalysisNamesSentinel(t *testing.T) {
	assert.Contains(t, InitialAnalysis.Prompt, `"No visible disease signs"`)
}

func TestShapeFieldNames(t *testing.T) {
	assert.Equal(t, []string{"breed", "color", "cowPresent", "health"}, InitialAnalysis.Output.Required)
	assert.Equal(t, []string{"imageUrl", "prompt"}, InitialAnalysis.Input.Required)
	assert.Equal(t, []string{"disease"}, SuggestTreatment.Input.Required)
	assert.Equal(t, []string{"treatmentSuggestions"}, SuggestTreatment.Output.Required)

	list := ConditionsAndTreatments.Output.Properties["diseaseDetails"]
	require.Equal(t, jsonschema.Array, list.Type)
	require.NotNil(t, list.Items)
	assert.Equal(t, []string{"diseaseName", "medicineLink", "medicineName"}, list.Items.Required)
}

func TestAnalysisResultAcceptsBothForms(t *testing.T) {
	base := `{"cowPresent":true,"breed":"Jersey 🐄","color":"brown","health":"No visible disease signs"}`
	enriched := `{"cowPresent":true,"breed":"Jersey","color":"brown","health":"Ringworm",
		"treatmentSuggestions":"Apply antifungal 💊",
		"diseaseDetails":[{"diseaseName":"Ringworm","medicineName":"Miconazole","medicineLink":"https://example.com/m"}]}`

	for _, raw := range []string{base, enriched} {
		var v any
		require.NoError(t, json.Unmarshal([]byte(raw), &v))
		assert.True(t, jsonschema.Validate(AnalysisResult, v), raw)
	}
}

func TestAllTemplates(t *testing.T) {
	all := All()
	assert.Len(t, all, 4)
	for name, tpl := range all {
		assert.Equal(t, name, tpl.Name)
		assert.NotEmpty(t, tpl.System)
		assert.Equal(t, jsonschema.Object, tpl.Output.Type)
	}
}
