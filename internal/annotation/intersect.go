package annotation

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/inodb/vibe-prs/internal/vcf"
)

// Column-name suffixes applied when both sides carry the same column.
const (
	SampleSuffix    = "_x"
	ReferenceSuffix = "_y"
)

// Samples holds a sample's variant rows with their normalized IDs.
type Samples struct {
	Columns []string
	IDs     []string
	Rows    [][]string
}

// LoadSamples reads every variant from p. Records with a missing
// identifier are kept; they can never match the reference.
func LoadSamples(p vcf.VariantParser) (*Samples, error) {
	s := &Samples{Columns: p.ColumnNames()}
	for {
		v, err := p.Next()
		if err != nil {
			return nil, fmt.Errorf("read variant at line %d: %w", p.LineNumber(), err)
		}
		if v == nil {
			break
		}
		s.IDs = append(s.IDs, v.NormalizedID())
		s.Rows = append(s.Rows, padRow(v.Columns(), len(s.Columns)))
	}
	return s, nil
}

// LoadSamplesFile reads the variants of a VCF file.
func LoadSamplesFile(path string) (*Samples, error) {
	p, err := vcf.NewParser(path)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	return LoadSamples(p)
}

// Table is the result of an intersection.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Intersect inner-joins samples with ref by normalized identifier. Sample
// order is preserved; sample variants absent from ref are dropped.
func Intersect(samples *Samples, ref *Reference) *Table {
	t := &Table{Columns: joinColumns(samples.Columns, ref.Columns)}
	for i, id := range samples.IDs {
		if id == "" || id == vcf.MissingID {
			continue
		}
		annot, ok := ref.Lookup(id)
		if !ok {
			continue
		}
		row := make([]string, 0, len(t.Columns))
		row = append(row, samples.Rows[i]...)
		row = append(row, annot...)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func joinColumns(left, right []string) []string {
	inLeft := make(map[string]bool, len(left))
	for _, c := range left {
		inLeft[c] = true
	}
	inRight := make(map[string]bool, len(right))
	for _, c := range right {
		inRight[c] = true
	}

	cols := make([]string, 0, len(left)+len(right))
	for _, c := range left {
		if inRight[c] {
			c += SampleSuffix
		}
		cols = append(cols, c)
	}
	for _, c := range right {
		if inLeft[c] {
			c += ReferenceSuffix
		}
		cols = append(cols, c)
	}
	return cols
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile writes the table to path as CSV, replacing any existing file.
func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create annotation table: %w", err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write annotation table: %w", err)
	}
	return f.Close()
}
