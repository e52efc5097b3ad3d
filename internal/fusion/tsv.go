package fusion

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Columns is the fixed header of the fused table.
var Columns = []string{"rsid", "ref", "effect_allele", "effect_size", "ALT_FREQS", "genotype"}

// TSVWriter writes fused rows in tab-delimited format. Null values are
// written as empty cells.
type TSVWriter struct {
	w *bufio.Writer
}

// NewTSVWriter creates a new fused table writer.
func NewTSVWriter(w io.Writer) *TSVWriter {
	return &TSVWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header line.
func (tw *TSVWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(Columns, "\t") + "\n")
	return err
}

// Write writes a single row.
func (tw *TSVWriter) Write(r FusedRow) error {
	values := []string{
		r.ID,
		r.Ref,
		r.EffectAllele,
		strconv.FormatFloat(r.EffectSize, 'g', -1, 64),
		r.AltFreq.String,
		r.Genotype.String,
	}
	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TSVWriter) Flush() error {
	return tw.w.Flush()
}

// WriteTSV writes the complete table, header included.
func (t *FusedTable) WriteTSV(w io.Writer) error {
	tw := NewTSVWriter(w)
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if err := tw.Write(r); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteFile writes the table to path, replacing any existing file.
func (t *FusedTable) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fused table: %w", err)
	}
	if err := t.WriteTSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write fused table: %w", err)
	}
	return f.Close()
}
