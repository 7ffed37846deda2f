package analysis

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/cowhealth/internal/domain/analysis"
	"github.com/bryanwahyu/cowhealth/internal/infra/ai/prompt"
)

// StructuredCaller is the structured-call primitive the stages run on.
type StructuredCaller interface {
	Call(ctx context.Context, tpl *prompt.Template, input, output any) error
}

// Pipeline runs the three analysis stages. It keeps no per-request state.
type Pipeline struct {
	caller StructuredCaller
	log    *zap.Logger
}

func NewPipeline(caller StructuredCaller, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{caller: caller, log: log}
}

type analysisInput struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}

type diseaseInput struct {
	Disease string `json:"disease"`
}

type conditionsOutput struct {
	DiseaseDetails []domain.ConditionTreatment `json:"diseaseDetails"`
}

// outcome is the settled result of one enrichment sub-call.
type outcome[T any] struct {
	Value T
	Err   error
}

func (o outcome[T]) ok() bool { return o.Err == nil }

// AnalyzeImage assesses the image and, when a disease is suspected, enriches
// the assessment with treatment suggestions and candidate conditions.
// Only a failure of the base assessment is returned; enrichment failures
// degrade to TreatmentFallback.
func (p *Pipeline) AnalyzeImage(ctx context.Context, req domain.Request) (*domain.Result, error) {
	var base domain.Assessment
	in := analysisInput{ImageURL: req.Image.URI(), Prompt: req.Instruction}
	if err := p.caller.Call(ctx, prompt.InitialAnalysis, in, &base); err != nil {
		return nil, err
	}

	if !base.CowPresent && (base.Breed != "" || base.Color != "" || base.Health != "") {
		p.log.Warn("model filled fields for an image without a cow",
			zap.String("breed", base.Breed),
			zap.String("color", base.Color),
			zap.String("health", base.Health),
		)
	}

	if !base.DiseaseSuspected() {
		return domain.NewResult(base), nil
	}

	advice, conditions := p.enrich(ctx, base.Health)
	return merge(base, advice, conditions), nil
}

// enrich issues both sub-calls concurrently and waits until both settle.
func (p *Pipeline) enrich(ctx context.Context, disease string) (outcome[domain.TreatmentAdvice], outcome[[]domain.ConditionTreatment]) {
	var (
		advice     outcome[domain.TreatmentAdvice]
		conditions outcome[[]domain.ConditionTreatment]
		g          errgroup.Group
	)
	g.Go(func() error {
		advice.Value, advice.Err = p.SuggestTreatment(ctx, disease)
		return advice.Err
	})
	g.Go(func() error {
		conditions.Value, conditions.Err = p.ListConditionsAndTreatments(ctx, disease)
		return conditions.Err
	})
	if err := g.Wait(); err != nil {
		p.log.Warn("treatment enrichment failed, using fallback",
			zap.String("disease", disease),
			zap.Error(err),
		)
	}
	return advice, conditions
}

func merge(base domain.Assessment, advice outcome[domain.TreatmentAdvice], conditions outcome[[]domain.ConditionTreatment]) *domain.Result {
	res := domain.NewResult(base)
	if !advice.ok() || !conditions.ok() {
		fallback := domain.TreatmentFallback
		res.TreatmentSuggestions = &fallback
		return res
	}
	suggestions := advice.Value.Suggestions
	res.TreatmentSuggestions = &suggestions
	if conditions.Value != nil {
		res.DiseaseDetails = conditions.Value
	}
	return res
}

// SuggestTreatment returns brief treatment guidance for disease.
func (p *Pipeline) SuggestTreatment(ctx context.Context, disease string) (domain.TreatmentAdvice, error) {
	var out domain.TreatmentAdvice
	if err := p.caller.Call(ctx, prompt.SuggestTreatment, diseaseInput{Disease: disease}, &out); err != nil {
		return domain.TreatmentAdvice{}, err
	}
	return out, nil
}

// ListConditionsAndTreatments returns candidate conditions for disease in the
// order the model produced them. An empty list is not an error.
func (p *Pipeline) ListConditionsAndTreatments(ctx context.Context, disease string) ([]domain.ConditionTreatment, error) {
	var out conditionsOutput
	if err := p.caller.Call(ctx, prompt.ConditionsAndTreatments, diseaseInput{Disease: disease}, &out); err != nil {
		return nil, err
	}
	if out.DiseaseDetails == nil {
		return []domain.ConditionTreatment{}, nil
	}
	return out.DiseaseDetails, nil
}
