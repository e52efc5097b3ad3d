package stage

import "strconv"

// Sex chromosomes excluded by the filter stage, in both naming styles.
const sexChromTargets = "^chrX,chrY,X,Y"

// plink2 file-set suffixes.
const (
	BedSuffix       = ".bed"
	BimSuffix       = ".bim"
	FamSuffix       = ".fam"
	LogSuffix       = ".log"
	NosexSuffix     = ".nosex"
	SscoreSuffix    = ".sscore"
	ScoreVarsSuffix = ".sscore.vars"
	RawSuffix       = ".raw"
)

// ScoreColumns are the 1-based panel columns handed to plink2 --score:
// variant ID, effect allele, effect weight.
type ScoreColumns struct {
	ID     int
	Allele int
	Weight int
}

// DefaultScoreColumns matches a PGS Catalog file laid out as rsID,
// chr_name, chr_position, effect_allele, other_allele, effect_weight.
var DefaultScoreColumns = ScoreColumns{ID: 1, Allele: 4, Weight: 6}

// Tools locates the external binaries and their shared settings.
type Tools struct {
	Bcftools string
	Plink2   string
	Threads  int // plink2 --threads; 0 leaves the tool default
	MemoryMB int // plink2 --memory; 0 leaves the tool default
}

// DefaultTools looks both binaries up on PATH.
func DefaultTools() Tools {
	return Tools{Bcftools: "bcftools", Plink2: "plink2"}
}

func (t Tools) plinkArgs(args ...string) []string {
	if t.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(t.Threads))
	}
	if t.MemoryMB > 0 {
		args = append(args, "--memory", strconv.Itoa(t.MemoryMB))
	}
	return args
}

func bfileSet(prefix string) []string {
	return []string{prefix + BedSuffix, prefix + BimSuffix, prefix + FamSuffix}
}

// NewFilter drops variants with a missing ID, sex-chromosome variants and
// non-biallelic sites from in, writing out.
func NewFilter(e Executor, t Tools, in, out string) Stage {
	return &toolStage{
		name: Filter,
		exec: e,
		bin:  t.Bcftools,
		args: []string{
			"view",
			"-e", `ID=="."`,
			"-t", sexChromTargets,
			"-m2", "-M2",
			in,
			"-o", out,
		},
		primary: out,
		outputs: []string{out},
	}
}

// NewConvert converts a VCF into the plink2 binary file set at prefix.
func NewConvert(e Executor, t Tools, vcfPath, prefix string) Stage {
	return &toolStage{
		name:    Convert,
		exec:    e,
		bin:     t.Plink2,
		args:    t.plinkArgs("--vcf", vcfPath, "--make-bed", "--out", prefix),
		primary: prefix,
		outputs: bfileSet(prefix),
	}
}

// NewDedup rewrites the file set at in to out, keeping the first of any
// duplicated variant IDs.
func NewDedup(e Executor, t Tools, in, out string) Stage {
	return &toolStage{
		name:    Dedup,
		exec:    e,
		bin:     t.Plink2,
		args:    t.plinkArgs("--bfile", in, "--rm-dup", "force-first", "--make-bed", "--out", out),
		primary: out,
		outputs: bfileSet(out),
	}
}

// NewScore scores the file set at bfile against panel, reading allele
// frequencies from freq. Outputs are <out>.sscore and <out>.sscore.vars.
func NewScore(e Executor, t Tools, bfile, freq, panel string, cols ScoreColumns, out string) Stage {
	return &toolStage{
		name: Score,
		exec: e,
		bin:  t.Plink2,
		args: t.plinkArgs(
			"--bfile", bfile,
			"--read-freq", freq,
			"--score", panel,
			strconv.Itoa(cols.ID), strconv.Itoa(cols.Allele), strconv.Itoa(cols.Weight),
			"header", "list-variants",
			"--out", out,
		),
		primary: out + SscoreSuffix,
		outputs: []string{out + SscoreSuffix, out + ScoreVarsSuffix},
	}
}

// NewRecode exports allele counts for the variants listed in vars as a
// plink2 .raw matrix at <out>.raw.
func NewRecode(e Executor, t Tools, bfile, vars, out string) Stage {
	return &toolStage{
		name:    Recode,
		exec:    e,
		bin:     t.Plink2,
		args:    t.plinkArgs("--bfile", bfile, "--extract", vars, "--recode", "A", "--out", out),
		primary: out + RawSuffix,
		outputs: []string{out + RawSuffix},
	}
}
