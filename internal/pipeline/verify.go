package pipeline

import (
	"fmt"

	"github.com/inodb/vibe-prs/internal/vcf"
)

// filterSummary describes the filtered VCF for its first sample.
type filterSummary struct {
	Sample        string
	Variants      int
	Heterozygous  int
	HomozygousAlt int
}

// checkFiltered reads the filtered VCF and fails on the first record that
// the filter stage should have removed: a missing ID, more than one
// alternate allele, or a sex chromosome.
func checkFiltered(path string) (filterSummary, error) {
	p, err := vcf.NewParser(path)
	if err != nil {
		return filterSummary{}, err
	}
	defer p.Close()

	var s filterSummary
	if names := p.SampleNames(); len(names) > 0 {
		s.Sample = names[0]
	}

	for {
		v, err := p.Next()
		if err != nil {
			return s, err
		}
		if v == nil {
			return s, nil
		}

		var problem string
		switch {
		case v.HasMissingID():
			problem = fmt.Sprintf("variant at %s:%d has no ID", v.Chrom, v.Pos)
		case !v.IsBiallelic():
			problem = fmt.Sprintf("variant %s is not biallelic (ALT %s)", v.ID, v.Alt)
		case v.IsSexChrom():
			problem = fmt.Sprintf("variant %s is on sex chromosome %s", v.ID, v.NormalizeChrom())
		}
		if problem != "" {
			return s, &vcf.ParseError{Line: p.LineNumber(), Message: problem}
		}

		s.Variants++
		gt := v.Genotype(0)
		switch {
		case vcf.IsHeterozygous(gt):
			s.Heterozygous++
		case vcf.IsHomozygousAlt(gt):
			s.HomozygousAlt++
		}
	}
}
