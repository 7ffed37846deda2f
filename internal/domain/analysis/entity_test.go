package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiseaseSuspected(t *testing.T) {
	assert.False(t, Assessment{CowPresent: false, Health: "Mastitis"}.DiseaseSuspected())
	assert.False(t, Assessment{CowPresent: true, Health: NoDiseaseSentinel}.DiseaseSuspected())
	assert.True(t, Assessment{CowPresent: true, Health: "Mastitis"}.DiseaseSuspected())
	assert.True(t, Assessment{CowPresent: true}.DiseaseSuspected())
}

func TestResultEnrichment(t *testing.T) {
	tips := "Isolate the cow 🐄"
	fallback := TreatmentFallback

	tests := []struct {
		name         string
		suggestions  *string
		wantEnriched bool
		wantFellBack bool
	}{
		{name: "base only"},
		{name: "enriched", suggestions: &tips, wantEnriched: true},
		{name: "fallback", suggestions: &fallback, wantEnriched: true, wantFellBack: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewResult(Assessment{CowPresent: true, Health: "Mastitis"})
			res.TreatmentSuggestions = tt.suggestions

			assert.Equal(t, tt.wantEnriched, res.Enriched())
			assert.Equal(t, tt.wantFellBack, res.FellBack())
		})
	}
}

func TestNewResultSerializesEmptyDetails(t *testing.T) {
	b, err := json.Marshal(NewResult(Assessment{CowPresent: true, Health: NoDiseaseSentinel}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"cowPresent":true,"breed":"","color":"","health":"No visible disease signs","diseaseDetails":[]}`, string(b))
}
