package prompt

import "github.com/sashabaranov/go-openai/jsonschema"

const veterinarySystem = `You are an expert veterinarian AI assistant for dairy and beef cattle.
You must produce one valid JSON object only (no markdown, no commentary, no code fences) that follows the requested schema.`

// InitialAnalysis produces the base assessment of a cow image.
var InitialAnalysis = MustTemplate(Template{
	Name:   "initialAnalysisPrompt",
	System: veterinarySystem,
	Prompt: `Based on the image {{media .imageUrl}} and the following prompt: {{.prompt}}, provide an analysis of the cow in terms of breed, color, and health.
If no cow is present, set cowPresent to false and leave the other fields blank. If a cow is present, set cowPresent to true and analyze the other fields.
If the cow shows no visible signs of illness or abnormalities, set health to exactly "No visible disease signs".
Use emojis in the breed and color fields to make the output more engaging.`,
	Input: object("Image analysis request.", map[string]jsonschema.Definition{
		"imageUrl": str("The URL of the cow image."),
		"prompt":   str("A prompt describing the cow image and desired analysis."),
	}),
	Output: object("Base assessment of the cow in the image.", map[string]jsonschema.Definition{
		"cowPresent": boolean("Whether a cow is present in the image."),
		"breed":      str("The breed of the cow."),
		"color":      str("The color and markings of the cow."),
		"health":     str("Visible signs of illness or abnormalities in the cow."),
	}),
})

// conditionItem is one suspected condition with its medicine.
var conditionItem = object("A suspected condition with a recommended medicine.", map[string]jsonschema.Definition{
	"diseaseName":  str("The name of the disease."),
	"medicineName": str("The recommended medicine for the disease."),
	"medicineLink": str("A link to more information about the medicine."),
})

// AnalysisResult is the shape of the merged result returned to callers.
var AnalysisResult = optionalObject("Analysis of a cow image.", map[string]jsonschema.Definition{
	"cowPresent":           boolean("Whether a cow is present in the image."),
	"breed":                str("The breed of the cow."),
	"color":                str("The color and markings of the cow."),
	"health":               str("Visible signs of illness or abnormalities in the cow."),
	"treatmentSuggestions": str("AI suggested treatments for detected diseases, including emojis."),
	"diseaseDetails":       array("List of suspected conditions and treatments for detected diseases.", conditionItem),
}, "breed", "color", "cowPresent", "health")
