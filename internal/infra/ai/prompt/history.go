package prompt

import "github.com/sashabaranov/go-openai/jsonschema"

// SummarizeHistory condenses a free-text analysis history.
var SummarizeHistory = MustTemplate(Template{
	Name: "summarizeAnalysisHistoryPrompt",
	System: `You are an AI assistant that summarizes analysis histories of CowHealth AI.
You must produce one valid JSON object only (no markdown, no commentary).`,
	Prompt: `Summarize the following analysis history:

{{.analysisHistory}}`,
	Input: object("Analysis history.", map[string]jsonschema.Definition{
		"analysisHistory": str("The history of all CowHealth AI analyses performed by the user."),
	}),
	Output: object("History summary.", map[string]jsonschema.Definition{
		"summary": str("A concise summary of the CowHealth AI analysis history."),
	}),
})

// All lists every template, keyed by name.
func All() map[string]*Template {
	return map[string]*Template{
		InitialAnalysis.Name:         InitialAnalysis,
		SuggestTreatment.Name:        SuggestTreatment,
		ConditionsAndTreatments.Name: ConditionsAndTreatments,
		SummarizeHistory.Name:        SummarizeHistory,
	}
}
