package prompt

import "github.com/sashabaranov/go-openai/jsonschema"

var diseaseInput = object("Disease description.", map[string]jsonschema.Definition{
	"disease": str("The detected disease of the cow."),
})

// SuggestTreatment asks for brief treatment guidance for a disease.
var SuggestTreatment = MustTemplate(Template{
	Name: "suggestTreatmentPrompt",
	System: `You are an expert veterinarian specializing in suggesting concise treatments for cow diseases.
You must produce one valid JSON object only (no markdown, no commentary).`,
	Prompt: `Based on the detected disease, provide brief treatment suggestions. Use emojis to make it more engaging.

Disease: {{.disease}}`,
	Input: diseaseInput,
	Output: object("Treatment guidance.", map[string]jsonschema.Definition{
		"treatmentSuggestions": str("Suggested treatments for the detected disease."),
	}),
})

// ConditionsAndTreatments asks for candidate conditions with medicines and links.
// The list is wrapped in an object because structured-output APIs need an object root.
var ConditionsAndTreatments = MustTemplate(Template{
	Name:   "generateConditionsAndTreatmentsPrompt",
	System: veterinarySystem,
	Prompt: `Based on the detected disease of a cow, suggest a list of plausible conditions, each with a recommended medicine and a link to find out more about the medicine.
Disease: {{.disease}}

Ensure that the medicine links are legitimate and point to a valid resource.`,
	Input: diseaseInput,
	Output: object("Suspected conditions and treatments.", map[string]jsonschema.Definition{
		"diseaseDetails": array("Array of treatment items with disease name, medicine name, and medicine link.", conditionItem),
	}),
})
