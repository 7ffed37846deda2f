package mysql

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bryanwahyu/cowhealth/internal/domain/analysis"
	"github.com/bryanwahyu/cowhealth/internal/domain/history"
)

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// dashToEmpty reverses stringOrDash on read
func dashToEmpty(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

// recordArgs flattens a record into column values
func recordArgs(r *history.Record) (id, prompt, imageURL, result string, createdAt time.Time, err error) {
	b, err := json.Marshal(r.Result)
	if err != nil {
		return "", "", "", "", time.Time{}, err
	}
	createdAt = r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return string(r.ID), r.Prompt, stringOrDash(r.ImageURL), string(b), createdAt, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*history.Record, error) {
	var (
		r        history.Record
		imageURL string
		result   []byte
	)
	if err := s.Scan(&r.ID, &r.Prompt, &imageURL, &result, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ImageURL = dashToEmpty(imageURL)
	r.Result = analysis.Result{DiseaseDetails: []analysis.ConditionTreatment{}}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &r.Result); err != nil {
			return nil, err
		}
	}
	if r.Result.DiseaseDetails == nil {
		r.Result.DiseaseDetails = []analysis.ConditionTreatment{}
	}
	return &r, nil
}
