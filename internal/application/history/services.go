package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/cowhealth/internal/application"
	"github.com/bryanwahyu/cowhealth/internal/domain/analysis"
	domain "github.com/bryanwahyu/cowhealth/internal/domain/history"
	"github.com/bryanwahyu/cowhealth/internal/infra/ai/prompt"
	"github.com/bryanwahyu/cowhealth/internal/infra/image"
)

// StructuredCaller runs one prompt template.
type StructuredCaller interface {
	Call(ctx context.Context, tpl *prompt.Template, input, output any) error
}

// Service keeps analysis records and summarizes them.
// Images is optional; without it only remote image URLs are kept.
type Service struct {
	Repo   domain.Repository
	Images domain.ImageStore
	Caller StructuredCaller
	Clock  application.Clock
	Log    *zap.Logger
}

// Record archives the inline image (if a store is configured) and saves the analysis.
func (s *Service) Record(ctx context.Context, req analysis.Request, res *analysis.Result) (*domain.Record, error) {
	now := s.now()
	id := uuid.New()
	rec := &domain.Record{
		ID:        domain.RecordID(id.String()),
		Prompt:    req.Instruction,
		ImageURL:  req.Image.URL,
		Result:    *res,
		CreatedAt: now,
	}

	if req.Image.Inline() && s.Images != nil {
		key := fmt.Sprintf("analyses/%s/%s%s", now.Format("2006/01/02"), id, image.Extension(req.Image.MIMEType))
		url, err := s.Images.Put(ctx, key, req.Image.Data, req.Image.MIMEType)
		if err != nil {
			return nil, fmt.Errorf("archive image: %w", err)
		}
		rec.ImageURL = url
	}

	if err := s.Repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	s.logger().Debug("analysis recorded", zap.String("id", string(rec.ID)), zap.Bool("enriched", res.Enriched()))
	return rec, nil
}

func (s *Service) Latest(ctx context.Context, limit int) ([]*domain.Record, error) {
	return s.Repo.Latest(ctx, limit)
}

func (s *Service) Get(ctx context.Context, id domain.RecordID) (*domain.Record, error) {
	return s.Repo.Get(ctx, id)
}

type summaryInput struct {
	AnalysisHistory string `json:"analysisHistory"`
}

type summaryOutput struct {
	Summary string `json:"summary"`
}

// SummarizeText condenses a free-text history with the model.
func (s *Service) SummarizeText(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("analysis history is empty")
	}
	var out summaryOutput
	if err := s.Caller.Call(ctx, prompt.SummarizeHistory, summaryInput{AnalysisHistory: text}, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

// SummarizeRecent summarizes the latest stored analyses. With no records it
// returns an empty summary without calling the model.
func (s *Service) SummarizeRecent(ctx context.Context, limit int) (string, error) {
	recs, err := s.Repo.Latest(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", nil
	}
	return s.SummarizeText(ctx, Render(recs))
}

// Render writes records oldest first, one paragraph each.
func Render(recs []*domain.Record) string {
	var b strings.Builder
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		res := r.Result
		fmt.Fprintf(&b, "[%s] prompt: %q\n", r.CreatedAt.Format("2006-01-02 15:04"), r.Prompt)
		if !res.CowPresent {
			b.WriteString("No cow detected.\n\n")
			continue
		}
		fmt.Fprintf(&b, "Breed: %s. Color: %s. Health: %s.\n", res.Breed, res.Color, res.Health)
		if res.TreatmentSuggestions != nil {
			fmt.Fprintf(&b, "Treatment: %s\n", *res.TreatmentSuggestions)
		}
		for _, d := range res.DiseaseDetails {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", d.ConditionName, d.MedicineName, d.ReferenceLink)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return application.SystemClock{}.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
