package result

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// field identifies a RiskResult destination for a recognized sscore column.
type field int

const (
	fieldID field = iota
	fieldAlleleCount
	fieldDosageSum
	fieldScoreAvg
	fieldScoreSum
)

// columnFields maps plink2 .sscore header names to RiskResult fields.
// Headers not listed here are ignored.
var columnFields = map[string]field{
	"IID":                     fieldID,
	"ALLELE_CT":               fieldAlleleCount,
	"NAMED_ALLELE_DOSAGE_SUM": fieldDosageSum,
	"SCORE1_AVG":              fieldScoreAvg,
	"SCORE1_SUM":              fieldScoreSum,
}

// StructureError reports score output that is truncated or malformed.
type StructureError struct {
	Path    string
	Line    int
	Message string
}

func (e *StructureError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "score output"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", loc, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

// ParseFile parses a plink2 .sscore file.
func ParseFile(path string) ([]RiskResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open score output: %w", err)
	}
	defer f.Close()

	return parse(f, path)
}

// Parse reads a whitespace-delimited score table with a header row and
// returns one RiskResult per data row.
func Parse(r io.Reader) ([]RiskResult, error) {
	return parse(r, "")
}

func parse(r io.Reader, path string) ([]RiskResult, error) {
	var lines []string
	var lineNos []int
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
		lineNos = append(lineNos, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read score output: %w", err)
	}
	if len(lines) < 2 {
		return nil, &StructureError{Path: path, Message: "no data rows found"}
	}

	header := strings.Fields(lines[0])
	cols := make(map[field]int)
	for i, name := range header {
		if f, ok := columnFields[strings.TrimPrefix(name, "#")]; ok {
			cols[f] = i
		}
	}
	if _, ok := cols[fieldID]; !ok {
		return nil, &StructureError{Path: path, Line: lineNos[0], Message: "missing IID column"}
	}
	_, hasAvg := cols[fieldScoreAvg]
	_, hasSum := cols[fieldScoreSum]
	_, hasCount := cols[fieldAlleleCount]
	if !hasAvg && !(hasSum && hasCount) {
		return nil, &StructureError{Path: path, Line: lineNos[0], Message: "missing SCORE1_AVG column"}
	}

	records := make([]RiskResult, 0, len(lines)-1)
	for i, line := range lines[1:] {
		lineNo := lineNos[i+1]
		fields := strings.Fields(line)
		if len(fields) != len(header) {
			return nil, &StructureError{
				Path:    path,
				Line:    lineNo,
				Message: fmt.Sprintf("expected %d columns, found %d", len(header), len(fields)),
			}
		}

		rec, err := parseRow(fields, cols, hasAvg)
		if err != nil {
			return nil, &StructureError{Path: path, Line: lineNo, Message: err.Error()}
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseRow(fields []string, cols map[field]int, hasAvg bool) (RiskResult, error) {
	rec := RiskResult{ID: fields[cols[fieldID]]}

	var err error
	if i, ok := cols[fieldAlleleCount]; ok {
		if rec.NumberOfSNPs, err = strconv.Atoi(fields[i]); err != nil {
			return rec, fmt.Errorf("invalid ALLELE_CT %q", fields[i])
		}
	}
	if i, ok := cols[fieldDosageSum]; ok {
		if rec.NumberOfSNPsUsed, err = strconv.Atoi(fields[i]); err != nil {
			return rec, fmt.Errorf("invalid NAMED_ALLELE_DOSAGE_SUM %q", fields[i])
		}
	}

	if hasAvg {
		i := cols[fieldScoreAvg]
		if rec.Score, err = strconv.ParseFloat(fields[i], 64); err != nil {
			return rec, fmt.Errorf("invalid SCORE1_AVG %q", fields[i])
		}
		return rec, nil
	}

	// SCORE1_AVG is SCORE1_SUM divided by ALLELE_CT in plink2.
	i := cols[fieldScoreSum]
	sum, err := strconv.ParseFloat(fields[i], 64)
	if err != nil {
		return rec, fmt.Errorf("invalid SCORE1_SUM %q", fields[i])
	}
	if rec.NumberOfSNPs == 0 {
		return rec, fmt.Errorf("ALLELE_CT is zero, cannot derive average score")
	}
	rec.Score = sum / float64(rec.NumberOfSNPs)
	return rec, nil
}
