package fusion

import "database/sql"

// FusedRow is one scored variant with its weight, frequency and genotype.
// AltFreq and Genotype are null when the variant was not observed.
type FusedRow struct {
	ID           string
	Ref          string // the panel's other (non-effect) allele
	EffectAllele string
	EffectSize   float64
	AltFreq      sql.NullString
	Genotype     sql.NullString
}

// FusedTable is the harmonized per-variant table, in panel order.
type FusedTable struct {
	Rows []FusedRow
}

// Len returns the number of rows.
func (t *FusedTable) Len() int {
	return len(t.Rows)
}

// IDs returns the row identifiers in table order.
func (t *FusedTable) IDs() []string {
	ids := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		ids[i] = r.ID
	}
	return ids
}

// Fuse subsets the panel to the variants the engine used (exact ID match),
// then left-joins frequencies and genotypes. Row order follows the panel and
// the first panel entry for an ID wins. genotypes may be nil, in which case
// every genotype is null.
func Fuse(used UsedVariants, weights ScoreWeights, freqs FrequencyTable, genotypes *GenotypeMatrix) *FusedTable {
	table := &FusedTable{}
	seen := make(map[string]struct{}, len(used))
	for _, w := range weights {
		if !used.Contains(w.ID) {
			continue
		}
		if _, dup := seen[w.ID]; dup {
			continue
		}
		seen[w.ID] = struct{}{}

		row := FusedRow{
			ID:           w.ID,
			Ref:          w.OtherAllele,
			EffectAllele: w.EffectAllele,
			EffectSize:   w.EffectWeight,
		}
		if f, ok := freqs[w.ID]; ok {
			row.AltFreq = sql.NullString{String: f, Valid: true}
		}
		if d, ok := genotypes.Dosage(w.ID); ok {
			row.Genotype = sql.NullString{String: d, Valid: true}
		}

		table.Rows = append(table.Rows, row)
	}
	return table
}
