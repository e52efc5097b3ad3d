// Package result converts plink2 scoring output into RiskResult records.
package result

import (
	"encoding/json"
	"fmt"
	"os"
)

// RiskResult is the per-sample polygenic risk score summary.
//
// number_of_snps and number_of_snps_used are the canonical JSON names. Older
// pipeline versions wrote number_of_alleles_observed and
// number_of_alleles_detected for the same values; both are accepted when
// decoding.
type RiskResult struct {
	ID               string  `json:"id"`
	NumberOfSNPs     int     `json:"number_of_snps"`
	NumberOfSNPsUsed int     `json:"number_of_snps_used"`
	Score            float64 `json:"score"`
}

// UnmarshalJSON decodes a RiskResult, resolving legacy field aliases.
// Canonical names take precedence when both are present.
func (r *RiskResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                      string   `json:"id"`
		NumberOfSNPs            *int     `json:"number_of_snps"`
		NumberOfAllelesObserved *int     `json:"number_of_alleles_observed"`
		NumberOfSNPsUsed        *int     `json:"number_of_snps_used"`
		NumberOfAllelesDetected *int     `json:"number_of_alleles_detected"`
		Score                   *float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = RiskResult{ID: raw.ID}
	switch {
	case raw.NumberOfSNPs != nil:
		r.NumberOfSNPs = *raw.NumberOfSNPs
	case raw.NumberOfAllelesObserved != nil:
		r.NumberOfSNPs = *raw.NumberOfAllelesObserved
	}
	switch {
	case raw.NumberOfSNPsUsed != nil:
		r.NumberOfSNPsUsed = *raw.NumberOfSNPsUsed
	case raw.NumberOfAllelesDetected != nil:
		r.NumberOfSNPsUsed = *raw.NumberOfAllelesDetected
	}
	if raw.Score != nil {
		r.Score = *raw.Score
	}
	return nil
}

// WriteJSON writes the records as an indented JSON array.
func WriteJSON(path string, records []RiskResult) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// ReadJSON reads a JSON array written by WriteJSON (or by older pipelines).
func ReadJSON(path string) ([]RiskResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var records []RiskResult
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", path, err)
	}
	return records, nil
}
