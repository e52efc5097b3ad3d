package fusion

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scoreFile = `###PGS CATALOG SCORING FILE
#pgs_id=PGS000001
#genome_build=GRCh37
rsID	chr_name	chr_position	effect_allele	other_allele	effect_weight
rs123	1	1000	A	G	0.5
rs1234	1	2000	T	C	-0.25
RS999	2	3000	G	A	1e-3
42	3	4000	C	T	0.1
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseScoreWeights(t *testing.T) {
	weights, err := ParseScoreWeights(strings.NewReader(scoreFile))
	require.NoError(t, err)
	require.Len(t, weights, 4)

	assert.Equal(t, ScoreWeight{ID: "rs123", EffectAllele: "A", OtherAllele: "G", EffectWeight: 0.5}, weights[0])
	assert.Equal(t, "rs999", weights[2].ID)
	assert.InDelta(t, 0.001, weights[2].EffectWeight, 1e-12)
	assert.Equal(t, "rs42", weights[3].ID)
}

func TestParseScoreWeights_HarmonizedFallbacks(t *testing.T) {
	input := "rsID\thm_rsID\teffect_allele\thm_inferOtherAllele\teffect_weight\n" +
		"\trs77\tA\tG\t0.2\n" +
		".\t.\tA\tG\t0.3\n" +
		"rs88\trs89\tC\t\t0.4\n"

	weights, err := ParseScoreWeights(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, weights, 2)
	assert.Equal(t, "rs77", weights[0].ID)
	assert.Equal(t, "G", weights[0].OtherAllele)
	assert.Equal(t, "rs88", weights[1].ID)
	assert.Equal(t, "", weights[1].OtherAllele)
}

func TestParseScoreWeights_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "#only comments\n", "missing header"},
		{"no id column", "effect_allele\teffect_weight\nA\t0.1\n", "missing 'rsID'"},
		{"no effect allele", "rsID\teffect_weight\nrs1\t0.1\n", "missing 'effect_allele'"},
		{"no weight", "rsID\teffect_allele\nrs1\tA\n", "missing 'effect_weight'"},
		{"non-numeric weight", "rsID\teffect_allele\teffect_weight\nrs1\tA\tabc\n", `invalid effect_weight "abc" for rs1`},
		{"empty weight", "rsID\teffect_allele\teffect_weight\nrs1\tA\t\n", "invalid effect_weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScoreWeights(strings.NewReader(tt.input))
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Error(), tt.want)
		})
	}
}

func TestParseScoreWeights_ErrorLine(t *testing.T) {
	input := "#c\nrsID\teffect_allele\teffect_weight\nrs1\tA\t0.1\nrs2\tA\tx\n"
	_, err := ParseScoreWeights(strings.NewReader(input))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 4, perr.Line)
}

func TestLoadFrequencies(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ref.afreq",
		"#CHROM\tID\tREF\tALT\tALT_FREQS\tOBS_CT\n"+
			"1\trs123\tG\tA\t0.31\t5008\n"+
			"1\tRS1234\tC\tT\t0.02\t5008\n"+
			"1\trs123\tG\tC\t0.99\t5008\n"+
			"2\t.\tA\tG\t0.5\t5008\n")

	freqs, err := LoadFrequencies(path)
	require.NoError(t, err)
	assert.Len(t, freqs, 2)
	assert.Equal(t, "0.31", freqs["rs123"])
	assert.Equal(t, "0.02", freqs["rs1234"])
}

func TestLoadFrequencies_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.afreq", "#CHROM\tID\tREF\tALT\n1\trs1\tA\tG\n")

	_, err := LoadFrequencies(path)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "ALT_FREQS")
}

func TestLoadGenotypeMatrix(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "s.raw",
		"FID IID PAT MAT SEX PHENOTYPE rs123_A rs1234_T rs_9_G rs5_C\n"+
			"s1 s1 0 0 0 -9 2 1 0 NA\n")

	g, err := LoadGenotypeMatrix(path)
	require.NoError(t, err)
	assert.Equal(t, "s1", g.Sample)

	d, ok := g.Dosage("rs123")
	assert.True(t, ok)
	assert.Equal(t, "2", d)

	d, ok = g.Dosage("rs_9")
	assert.True(t, ok)
	assert.Equal(t, "0", d)

	_, ok = g.Dosage("rs5")
	assert.False(t, ok, "NA is a missing call")
}

func TestLoadGenotypeMatrix_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", "empty file"},
		{"header only", "FID IID rs1_A\n", "no sample rows"},
		{"width mismatch", "FID IID rs1_A\ns1 s1\n", "expected 3 columns, found 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".raw", tt.content)
			_, err := LoadGenotypeMatrix(path)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Error(), tt.want)
		})
	}
}

func TestVariantIDFromRawColumn(t *testing.T) {
	tests := []struct {
		col  string
		want string
	}{
		{"rs123_A", "rs123"},
		{"RS123_AT", "rs123"},
		{"123_G", "rs123"},
		{"rs123", "rs123"},
	}
	for _, tt := range tests {
		t.Run(tt.col, func(t *testing.T) {
			assert.Equal(t, tt.want, VariantIDFromRawColumn(tt.col))
		})
	}
}

func TestLoadUsedVariants(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "s.sscore.vars", "rs123\n\nRS999\n")

	used, err := LoadUsedVariants(path)
	require.NoError(t, err)
	assert.Len(t, used, 2)
	assert.True(t, used.Contains("rs123"))
	assert.True(t, used.Contains("rs999"))
	assert.False(t, used.Contains("rs1234"))
}

func TestFuse_ExactMatchSubset(t *testing.T) {
	weights, err := ParseScoreWeights(strings.NewReader(scoreFile))
	require.NoError(t, err)

	// rs123 is a prefix of rs1234; only the exact identifier may survive.
	table := Fuse(NewUsedVariants("rs123"), weights, FrequencyTable{}, nil)
	assert.Equal(t, []string{"rs123"}, table.IDs())
}

func TestFuse_OrderAndNulls(t *testing.T) {
	weights, err := ParseScoreWeights(strings.NewReader(scoreFile))
	require.NoError(t, err)

	used := NewUsedVariants("rs999", "rs123", "rs42")
	freqs := FrequencyTable{"rs123": "0.31", "rs42": "0.7"}
	genotypes := &GenotypeMatrix{Sample: "s1", Dosages: map[string]string{"rs999": "1", "rs123": "2"}}

	table := Fuse(used, weights, freqs, genotypes)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"rs123", "rs999", "rs42"}, table.IDs(), "panel order")

	assert.Equal(t, "G", table.Rows[0].Ref)
	assert.Equal(t, "A", table.Rows[0].EffectAllele)
	assert.Equal(t, "0.31", table.Rows[0].AltFreq.String)
	assert.Equal(t, "2", table.Rows[0].Genotype.String)

	assert.False(t, table.Rows[1].AltFreq.Valid)
	assert.True(t, table.Rows[1].Genotype.Valid)

	assert.True(t, table.Rows[2].AltFreq.Valid)
	assert.False(t, table.Rows[2].Genotype.Valid)
}

func TestFuse_UnusedPanelEntriesAbsent(t *testing.T) {
	weights := ScoreWeights{{ID: "rs1"}, {ID: "rs2"}}
	table := Fuse(NewUsedVariants("rs3"), weights, nil, nil)
	assert.Equal(t, 0, table.Len())
}

func TestFuse_DuplicatePanelIDFirstWins(t *testing.T) {
	weights := ScoreWeights{
		{ID: "rs1", EffectAllele: "G", OtherAllele: "A", EffectWeight: 0.1},
		{ID: "rs2", EffectAllele: "T", OtherAllele: "C", EffectWeight: 0.2},
		{ID: "rs1", EffectAllele: "C", OtherAllele: "T", EffectWeight: 0.5},
	}
	table := Fuse(NewUsedVariants("rs1", "rs2"), weights, nil, nil)
	assert.Equal(t, []string{"rs1", "rs2"}, table.IDs())
	assert.Equal(t, 0.1, table.Rows[0].EffectSize)
	assert.Equal(t, "G", table.Rows[0].EffectAllele)
}

func TestFusedTable_WriteTSV(t *testing.T) {
	weights, err := ParseScoreWeights(strings.NewReader(scoreFile))
	require.NoError(t, err)
	table := Fuse(NewUsedVariants("rs123", "rs1234"), weights,
		FrequencyTable{"rs123": "0.31"},
		&GenotypeMatrix{Dosages: map[string]string{"rs1234": "1"}})

	var buf bytes.Buffer
	require.NoError(t, table.WriteTSV(&buf))

	want := "rsid\tref\teffect_allele\teffect_size\tALT_FREQS\tgenotype\n" +
		"rs123\tG\tA\t0.5\t0.31\t\n" +
		"rs1234\tC\tT\t-0.25\t\t1\n"
	assert.Equal(t, want, buf.String())
}

func TestFusedTable_WriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s_final_prs_table.tsv")
	table := &FusedTable{Rows: []FusedRow{{ID: "rs1", Ref: "A", EffectAllele: "G", EffectSize: 0.1}}}
	require.NoError(t, table.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, "rs1\tA\tG\t0.1\t\t", lines[1])
}
