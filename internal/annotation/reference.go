// Package annotation intersects a sample's variants with a curated
// drug-annotation reference table by normalized variant identifier.
package annotation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/inodb/vibe-prs/internal/vcf"
)

// DefaultKeyColumns is the detection order for the reference's variant key
// when none is configured.
var DefaultKeyColumns = []string{"ID", "rsID", "rsid", "SNP", "variant"}

// Reference is a drug-annotation table deduplicated by variant key.
type Reference struct {
	Columns   []string
	KeyColumn string
	rows      map[string][]string // normalized ID -> first row
	order     []string
}

// Len returns the number of distinct variant keys.
func (r *Reference) Len() int {
	return len(r.order)
}

// Lookup returns the first reference row for a normalized ID.
func (r *Reference) Lookup(id string) ([]string, bool) {
	row, ok := r.rows[id]
	return row, ok
}

// LoadReference loads a comma-separated annotation table. keyColumn names
// the variant identifier column; when empty, DefaultKeyColumns is searched.
func LoadReference(path, keyColumn string) (*Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open annotation table: %w", err)
	}
	defer f.Close()

	ref, err := ReadReference(f, keyColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ref, nil
}

// ReadReference parses an annotation table from r.
func ReadReference(r io.Reader, keyColumn string) (*Reference, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("annotation table: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read annotation header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	keyIdx := findKey(header, keyColumn)
	if keyIdx < 0 {
		if keyColumn == "" {
			return nil, fmt.Errorf("annotation table: no variant key column (tried %s)", strings.Join(DefaultKeyColumns, ", "))
		}
		return nil, fmt.Errorf("annotation table: missing %q column", keyColumn)
	}

	ref := &Reference{
		Columns:   header,
		KeyColumn: header[keyIdx],
		rows:      make(map[string][]string),
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read annotation table: %w", err)
		}
		if keyIdx >= len(rec) {
			continue
		}
		id := vcf.NormalizeID(rec[keyIdx])
		if id == "" || id == vcf.MissingID {
			continue
		}
		if _, seen := ref.rows[id]; seen {
			continue
		}
		ref.rows[id] = padRow(rec, len(header))
		ref.order = append(ref.order, id)
	}

	return ref, nil
}

func findKey(header []string, keyColumn string) int {
	candidates := DefaultKeyColumns
	if keyColumn != "" {
		candidates = []string{keyColumn}
	}
	for _, want := range candidates {
		for i, col := range header {
			if col == want {
				return i
			}
		}
	}
	return -1
}

// padRow returns rec resized to n fields.
func padRow(rec []string, n int) []string {
	row := make([]string, n)
	copy(row, rec)
	return row
}
