package history

import (
	"time"

	"github.com/bryanwahyu/cowhealth/internal/domain/analysis"
)

// RecordID identifier type
type RecordID string

// Record is an analysis kept for later review and summarization.
type Record struct {
	ID        RecordID        `json:"id"`
	Prompt    string          `json:"prompt"`
	ImageURL  string          `json:"image_url,omitempty"`
	Result    analysis.Result `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}
