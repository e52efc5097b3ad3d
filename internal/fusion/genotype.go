package fusion

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/inodb/vibe-prs/internal/vcf"
)

// rawFixedColumns are the leading sample columns of a plink2 .raw file.
var rawFixedColumns = map[string]bool{
	"FID": true, "IID": true, "PAT": true, "MAT": true, "SEX": true, "PHENOTYPE": true,
}

// rawMissing is the value plink2 writes for a missing genotype.
const rawMissing = "NA"

// GenotypeMatrix holds one sample's allele counts from a plink2 --recode A
// file, transposed to one entry per variant.
type GenotypeMatrix struct {
	Sample  string
	Dosages map[string]string // normalized variant ID -> allele count
}

// Dosage returns the allele count for a variant, or false when the variant
// was not genotyped or the call is missing.
func (g *GenotypeMatrix) Dosage(id string) (string, bool) {
	if g == nil {
		return "", false
	}
	d, ok := g.Dosages[id]
	return d, ok
}

// VariantIDFromRawColumn recovers the variant ID from a .raw column name by
// stripping the trailing "_<allele>" suffix (e.g. "rs123_A" -> "rs123").
func VariantIDFromRawColumn(col string) string {
	if i := strings.LastIndex(col, "_"); i > 0 {
		col = col[:i]
	}
	return vcf.NormalizeID(col)
}

// LoadGenotypeMatrix reads the header and first sample row of a .raw file.
func LoadGenotypeMatrix(path string) (*GenotypeMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genotype matrix: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read genotype matrix: %w", err)
		}
		return nil, &ParseError{Path: path, Message: "empty file"}
	}
	header := strings.Fields(scanner.Text())

	var row []string
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		if fields := strings.Fields(scanner.Text()); len(fields) > 0 {
			row = fields
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read genotype matrix: %w", err)
	}
	if row == nil {
		return nil, &ParseError{Path: path, Message: "no sample rows found"}
	}
	if len(row) != len(header) {
		return nil, &ParseError{
			Path:    path,
			Line:    lineNo,
			Message: fmt.Sprintf("expected %d columns, found %d", len(header), len(row)),
		}
	}

	g := &GenotypeMatrix{Dosages: make(map[string]string)}
	for i, col := range header {
		if col == "IID" {
			g.Sample = row[i]
		}
		if rawFixedColumns[col] {
			continue
		}
		if row[i] == rawMissing {
			continue
		}
		id := VariantIDFromRawColumn(col)
		if _, seen := g.Dosages[id]; !seen {
			g.Dosages[id] = row[i]
		}
	}

	return g, nil
}
