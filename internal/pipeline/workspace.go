package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/inodb/vibe-prs/internal/stage"
)

// Workspace is the directory layout shared by every run. Intermediates go
// under ScratchDir, final artifacts under OutputDir, trails under LogDir.
type Workspace struct {
	ScratchDir string
	OutputDir  string
	LogDir     string
}

// SampleName derives the sample key from an input file name: the base name
// with .vcf.gz, .vcf.bgz or its last extension removed.
func SampleName(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".vcf.gz", ".vcf.bgz"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return base[:len(base)-len(ext)]
		}
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// Paths are the per-sample files of one run.
type Paths struct {
	Sample       string
	FilteredVCF  string
	PlinkPrefix  string
	DedupPrefix  string
	ScorePrefix  string
	RecodePrefix string
	JSON         string
	FusedTable   string
	Annotation   string
	Log          string
}

// Paths returns the file layout for sample.
func (w Workspace) Paths(sample string) Paths {
	plink := filepath.Join(w.ScratchDir, "plink", sample)
	dedup := plink + "_dedup"
	return Paths{
		Sample:       sample,
		FilteredVCF:  filepath.Join(w.ScratchDir, "vcf", sample+".filtered.vcf"),
		PlinkPrefix:  plink,
		DedupPrefix:  dedup,
		ScorePrefix:  dedup + ".prs",
		RecodePrefix: filepath.Join(w.ScratchDir, "table", sample+"_used_snps"),
		JSON:         filepath.Join(w.OutputDir, sample+".json"),
		FusedTable:   filepath.Join(w.OutputDir, sample+"_final_prs_table.tsv"),
		Annotation:   filepath.Join(w.OutputDir, sample+"_intersection_with_drug_annotation.csv"),
		Log:          filepath.Join(w.LogDir, sample+".log"),
	}
}

// Sscore is the scoring engine's per-sample output.
func (p Paths) Sscore() string {
	return p.ScorePrefix + stage.SscoreSuffix
}

// ScoreVars is the list of variants the scoring engine used.
func (p Paths) ScoreVars() string {
	return p.ScorePrefix + stage.ScoreVarsSuffix
}

// Raw is the recoded genotype matrix.
func (p Paths) Raw() string {
	return p.RecodePrefix + stage.RawSuffix
}

// Prepare creates the workspace directories.
func (w Workspace) Prepare() error {
	dirs := []string{
		filepath.Join(w.ScratchDir, "vcf"),
		filepath.Join(w.ScratchDir, "plink"),
		filepath.Join(w.ScratchDir, "table"),
		w.OutputDir,
		w.LogDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create workspace directory: %w", err)
		}
	}
	return nil
}

// CleanupList returns the intermediates removed after a successful run
// with scratch cleanup enabled. Final artifacts are never listed.
func (p Paths) CleanupList() []string {
	files := []string{p.FilteredVCF}
	for _, prefix := range []string{p.PlinkPrefix, p.DedupPrefix} {
		for _, suffix := range []string{stage.BedSuffix, stage.BimSuffix, stage.FamSuffix, stage.LogSuffix, stage.NosexSuffix} {
			files = append(files, prefix+suffix)
		}
	}
	for _, suffix := range []string{stage.LogSuffix, stage.NosexSuffix, ".profile", stage.SscoreSuffix, stage.ScoreVarsSuffix} {
		files = append(files, p.ScorePrefix+suffix)
	}
	for _, suffix := range []string{stage.RawSuffix, stage.LogSuffix, stage.NosexSuffix} {
		files = append(files, p.RecodePrefix+suffix)
	}
	return files
}
