// Package vcf provides VCF file parsing functionality.
package vcf

import "strings"

// MissingID is the VCF sentinel for a variant without an identifier.
const MissingID = "."

// Variant represents a single genomic variant from a VCF file.
type Variant struct {
	Chrom         string   // Chromosome name (e.g., "12", "chr12")
	Pos           int64    // 1-based genomic position
	ID            string   // Variant identifier as written in the file (e.g., rs ID)
	Ref           string   // Reference allele
	Alt           string   // Alternate allele(s), comma-separated when multi-allelic
	Qual          string   // Quality column, kept verbatim
	Filter        string   // Filter status (PASS or filter name)
	Info          string   // INFO column, kept verbatim
	SampleColumns []string // FORMAT followed by one column per sample
}

// NormalizedID returns the variant identifier in canonical rs form.
func (v *Variant) NormalizedID() string {
	return NormalizeID(v.ID)
}

// HasMissingID reports whether the identifier is empty or the "." sentinel.
func (v *Variant) HasMissingID() bool {
	id := strings.TrimSpace(v.ID)
	return id == "" || id == MissingID
}

// IsBiallelic returns true if the site carries exactly one alternate allele.
func (v *Variant) IsBiallelic() bool {
	return v.Alt != "" && v.Alt != MissingID && !strings.Contains(v.Alt, ",")
}

// IsSexChrom returns true for X and Y chromosomes, with or without "chr" prefix.
func (v *Variant) IsSexChrom() bool {
	switch strings.ToUpper(v.NormalizeChrom()) {
	case "X", "Y":
		return true
	}
	return false
}

// NormalizeChrom returns the chromosome name without "chr" prefix.
func (v *Variant) NormalizeChrom() string {
	if len(v.Chrom) > 3 && strings.EqualFold(v.Chrom[:3], "chr") {
		return v.Chrom[3:]
	}
	return v.Chrom
}

// Genotype returns the GT call for the sample at index i (0-based), or ""
// when the FORMAT column has no GT key or the sample is absent.
func (v *Variant) Genotype(i int) string {
	if len(v.SampleColumns) < i+2 {
		return ""
	}
	keys := strings.Split(v.SampleColumns[0], ":")
	vals := strings.Split(v.SampleColumns[i+1], ":")
	for k, key := range keys {
		if key == "GT" && k < len(vals) {
			return vals[k]
		}
	}
	return ""
}

// Columns returns the variant as the list of VCF data columns.
func (v *Variant) Columns() []string {
	cols := []string{
		v.Chrom,
		formatPos(v.Pos),
		v.ID,
		v.Ref,
		v.Alt,
		v.Qual,
		v.Filter,
		v.Info,
	}
	return append(cols, v.SampleColumns...)
}

// IsHeterozygous reports whether a GT string such as "0/1" or "1|0" carries
// two different allele indices.
func IsHeterozygous(gt string) bool {
	a, b, ok := splitGT(gt)
	return ok && a != b
}

// IsHomozygousAlt reports whether a GT string calls the same non-reference
// allele on both copies (e.g. "1/1").
func IsHomozygousAlt(gt string) bool {
	a, b, ok := splitGT(gt)
	return ok && a == b && a != "0"
}

func splitGT(gt string) (string, string, bool) {
	sep := strings.IndexAny(gt, "/|")
	if sep < 0 {
		return "", "", false
	}
	a, b := gt[:sep], gt[sep+1:]
	if a == "." || b == "." || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
