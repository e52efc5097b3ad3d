// Package fusion merges the score-weight panel, allele frequencies and the
// per-sample genotype matrix into a single per-variant table.
package fusion

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/inodb/vibe-prs/internal/vcf"
)

// PGS Catalog scoring file column names.
const (
	ColRsID             = "rsID"
	ColHarmonizedRsID   = "hm_rsID"
	ColEffectAllele     = "effect_allele"
	ColOtherAllele      = "other_allele"
	ColInferOtherAllele = "hm_inferOtherAllele"
	ColEffectWeight     = "effect_weight"
)

// ScoreWeight is one variant of a score-weight reference panel.
type ScoreWeight struct {
	ID           string // normalized rsID
	EffectAllele string
	OtherAllele  string
	EffectWeight float64
}

// ScoreWeights is a panel in file order.
type ScoreWeights []ScoreWeight

// ParseError reports a malformed reference or tool-output table.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadScoreWeights loads a PGS Catalog harmonized scoring file.
func LoadScoreWeights(path string) (ScoreWeights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open score file: %w", err)
	}
	defer f.Close()

	return parseScoreWeights(f, path)
}

// ParseScoreWeights parses scoring file content. Leading '#' comment lines
// are skipped; the first remaining line is the tab-separated header.
func ParseScoreWeights(r io.Reader) (ScoreWeights, error) {
	return parseScoreWeights(r, "score file")
}

func parseScoreWeights(r io.Reader, path string) (ScoreWeights, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	lineNo := 0
	var header []string
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		header = strings.Split(line, "\t")
		break
	}
	if header == nil {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read score file: %w", err)
		}
		return nil, &ParseError{Path: path, Message: "missing header line"}
	}

	idx := indexColumns(header)
	idCol := columnOr(idx, ColRsID, -1)
	hmIDCol := columnOr(idx, ColHarmonizedRsID, -1)
	if idCol < 0 && hmIDCol < 0 {
		return nil, &ParseError{Path: path, Line: lineNo, Message: "missing 'rsID' column"}
	}
	effectCol, ok := idx[ColEffectAllele]
	if !ok {
		return nil, &ParseError{Path: path, Line: lineNo, Message: "missing 'effect_allele' column"}
	}
	weightCol, ok := idx[ColEffectWeight]
	if !ok {
		return nil, &ParseError{Path: path, Line: lineNo, Message: "missing 'effect_weight' column"}
	}
	otherCol := columnOr(idx, ColOtherAllele, -1)
	inferCol := columnOr(idx, ColInferOtherAllele, -1)

	var weights ScoreWeights
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")

		id := vcf.NormalizeID(cell(fields, idCol))
		if id == "" || id == vcf.MissingID {
			id = vcf.NormalizeID(cell(fields, hmIDCol))
		}
		if id == "" || id == vcf.MissingID {
			continue
		}

		raw := strings.TrimSpace(cell(fields, weightCol))
		weight, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &ParseError{
				Path:    path,
				Line:    lineNo,
				Message: fmt.Sprintf("invalid effect_weight %q for %s", raw, id),
			}
		}

		other := cell(fields, otherCol)
		if other == "" {
			other = cell(fields, inferCol)
		}

		weights = append(weights, ScoreWeight{
			ID:           id,
			EffectAllele: cell(fields, effectCol),
			OtherAllele:  other,
			EffectWeight: weight,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read score file: %w", err)
	}

	return weights, nil
}

// indexColumns maps header names (leading '#' stripped) to column indices.
// The first occurrence of a duplicated name wins.
func indexColumns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(strings.TrimSpace(name), "#")
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func columnOr(idx map[string]int, name string, def int) int {
	if i, ok := idx[name]; ok {
		return i
	}
	return def
}

// cell returns fields[i] trimmed, or "" when i is out of range.
func cell(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}
