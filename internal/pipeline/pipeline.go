// Package pipeline runs the VCF to polygenic risk score workflow: filter,
// convert, deduplicate, score, recode, fuse and annotate, strictly in that
// order, each step gated on the previous one.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-prs/internal/annotation"
	"github.com/inodb/vibe-prs/internal/config"
	"github.com/inodb/vibe-prs/internal/fusion"
	"github.com/inodb/vibe-prs/internal/result"
	"github.com/inodb/vibe-prs/internal/stage"
	"github.com/inodb/vibe-prs/internal/store"
	"github.com/inodb/vibe-prs/internal/trail"
)

// DefaultBuild is used when a request names no reference build.
const DefaultBuild = config.GRCh37

// Steps run in-process after the tool stages.
const (
	StepVerify   = "verify"
	StepParse    = "parse"
	StepFuse     = "fuse"
	StepAnnotate = "annotate"
)

// StatusSuccess is the status of a completed run.
const StatusSuccess = "success"

// Request is one pipeline invocation.
type Request struct {
	VariantFile    string
	ReferenceBuild string // GRCh37 or GRCh38, case-insensitive; empty selects DefaultBuild
	CleanScratch   bool
}

// Artifacts are the files a successful run leaves behind.
type Artifacts struct {
	JSON       string
	FusedTable string
	Annotation string // empty when no annotation table is configured
	Log        string
}

// Result is a successful run. Results holds the first scored sample; the
// JSON artifact holds every record.
type Result struct {
	Status     string              `json:"status"`
	Results    result.RiskResult   `json:"results"`
	SampleName string              `json:"sample_name"`
	RunID      string              `json:"-"`
	Build      string              `json:"-"`
	Records    []result.RiskResult `json:"-"`
	FusedRows  int                 `json:"-"`
	Artifacts  Artifacts           `json:"-"`
	Duration   time.Duration       `json:"-"`
}

// Ledger records finished runs.
type Ledger interface {
	RecordRun(ctx context.Context, r store.Run) (string, error)
}

// Pipeline executes runs against a fixed workspace and reference set. A
// Pipeline is safe for concurrent use by runs with distinct sample names.
type Pipeline struct {
	workspace    Workspace
	references   *config.Config
	annotation   config.AnnotationConfig
	tools        stage.Tools
	scoreColumns stage.ScoreColumns
	exec         stage.Executor
	ledger       Ledger
	trailOpts    []trail.Option
	remove       func(string) error
	logger       *zap.Logger
}

// New creates a pipeline from configuration. Tool invocations go through e.
func New(cfg *config.Config, e stage.Executor) *Pipeline {
	return &Pipeline{
		workspace: Workspace{
			ScratchDir: cfg.Workspace.ScratchDir,
			OutputDir:  cfg.Workspace.OutputDir,
			LogDir:     cfg.Workspace.LogDir,
		},
		references: cfg,
		annotation: cfg.Annotation,
		tools: stage.Tools{
			Bcftools: cfg.Tools.Bcftools,
			Plink2:   cfg.Tools.Plink2,
			Threads:  cfg.Tools.Threads,
			MemoryMB: cfg.Tools.MemoryMB,
		},
		scoreColumns: stage.DefaultScoreColumns,
		exec:         e,
		remove:       os.Remove,
		logger:       zap.NewNop(),
	}
}

// SetLogger sets the application logger.
func (p *Pipeline) SetLogger(l *zap.Logger) {
	p.logger = l
}

// SetLedger enables run recording.
func (p *Pipeline) SetLedger(l Ledger) {
	p.ledger = l
}

// SetTrailOptions configures the per-sample trail (console, clock).
func (p *Pipeline) SetTrailOptions(opts ...trail.Option) {
	p.trailOpts = opts
}

// Workspace returns the directory layout.
func (p *Pipeline) Workspace() Workspace {
	return p.workspace
}

// Run executes the full pipeline for req. Input errors are returned before
// anything is written. Any later failure aborts the run; no partial result
// is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	build, ref, err := p.validate(req)
	if err != nil {
		return nil, err
	}

	paths := p.workspace.Paths(SampleName(req.VariantFile))
	if err := p.workspace.Prepare(); err != nil {
		return nil, &Error{Kind: KindInternal, Err: err}
	}
	tr, err := trail.Open(paths.Log, p.trailOpts...)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Path: paths.Log, Err: err}
	}
	defer tr.Close()

	startedAt := time.Now()
	total := tr.Step()
	tr.Logf("Pipeline started")
	tr.Logf("Input VCF: %s", req.VariantFile)
	tr.Logf("Reference build: %s", build)
	tr.Logf("PRS file: %s", ref.ScoreFile)
	tr.Logf("Clean temporary files: %t", req.CleanScratch)

	res, err := p.execute(ctx, tr, req, ref, paths)
	if err != nil {
		tr.Logf("Pipeline failed: %v", err)
		p.logger.Error("pipeline failed",
			zap.String("sample", paths.Sample),
			zap.String("stage", StageOf(err)),
			zap.Error(err))
		p.record(ctx, req, build, ref, paths.Sample, startedAt, total.Elapsed(), nil, err)
		return nil, err
	}

	res.Build = build
	res.Artifacts.Log = paths.Log
	res.Duration = total.Elapsed()
	tr.Logf("Done. JSON output at %s", paths.JSON)
	tr.Logf("Total runtime: %.1f seconds", res.Duration.Seconds())

	res.RunID = p.record(ctx, req, build, ref, paths.Sample, startedAt, res.Duration, res, nil)
	p.logger.Info("pipeline finished",
		zap.String("sample", res.SampleName),
		zap.Float64("score", res.Results.Score),
		zap.Int("snps_used", res.Results.NumberOfSNPsUsed),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (p *Pipeline) validate(req Request) (string, config.Reference, error) {
	if req.VariantFile == "" {
		return "", config.Reference{}, inputError("", errors.New("variant file is required"))
	}

	selector := req.ReferenceBuild
	if selector == "" {
		selector = DefaultBuild
	}
	build, ok := config.CastToBuild(selector)
	if !ok {
		return "", config.Reference{}, inputError("", fmt.Errorf("unknown reference build %q (want %s or %s)", req.ReferenceBuild, config.GRCh37, config.GRCh38))
	}
	ref, ok := p.references.Reference(build)
	if !ok {
		return "", config.Reference{}, &Error{Kind: KindReference, Err: fmt.Errorf("no reference files configured for %s", build)}
	}

	info, err := os.Stat(req.VariantFile)
	if err != nil {
		return "", config.Reference{}, inputError(req.VariantFile, fmt.Errorf("input variant file: %w", err))
	}
	if info.IsDir() {
		return "", config.Reference{}, inputError(req.VariantFile, errors.New("input variant file is a directory"))
	}

	required := []string{ref.ScoreFile, ref.FreqFile}
	if p.annotation.Table != "" {
		required = append(required, p.annotation.Table)
	}
	for _, path := range required {
		if _, err := os.Stat(path); err != nil {
			return "", config.Reference{}, &Error{Kind: KindReference, Path: path, Err: fmt.Errorf("reference file: %w", err)}
		}
	}

	return build, ref, nil
}

// toolStep pairs a stage with its trail messages.
type toolStep struct {
	stage  stage.Stage
	start  string
	failed string
	done   string
}

func (p *Pipeline) execute(ctx context.Context, tr *trail.Trail, req Request, ref config.Reference, paths Paths) (*Result, error) {
	filter := []toolStep{
		{
			stage:  stage.NewFilter(p.exec, p.tools, req.VariantFile, paths.FilteredVCF),
			start:  "Filtering VCF (removing variants with missing ID and sex chromosomes)...",
			failed: "BCFtools filtering failed",
			done:   "VCF filtered",
		},
	}
	if err := p.runSteps(ctx, tr, filter); err != nil {
		return nil, err
	}
	if err := p.verifyFiltered(tr, paths); err != nil {
		return nil, err
	}

	scoring := []toolStep{
		{
			stage:  stage.NewConvert(p.exec, p.tools, paths.FilteredVCF, paths.PlinkPrefix),
			start:  "Converting filtered VCF to PLINK format...",
			failed: "PLINK2 conversion failed",
			done:   "PLINK files created",
		},
		{
			stage:  stage.NewDedup(p.exec, p.tools, paths.PlinkPrefix, paths.DedupPrefix),
			start:  "Removing duplicate variants with PLINK2...",
			failed: "PLINK2 duplicate removal failed",
			done:   "Duplicates removed",
		},
		{
			stage:  stage.NewScore(p.exec, p.tools, paths.DedupPrefix, ref.FreqFile, ref.ScoreFile, p.scoreColumns, paths.ScorePrefix),
			start:  "Calculating PRS...",
			failed: "PLINK2 PRS calculation failed",
			done:   "PRS calculated",
		},
	}
	if err := p.runSteps(ctx, tr, scoring); err != nil {
		return nil, err
	}

	tr.Logf("Parsing PLINK results to JSON...")
	timer := tr.Step()
	records, err := result.ParseFile(paths.Sscore())
	if err != nil {
		return nil, parseError(StepParse, paths.Sscore(), err)
	}
	if err := result.WriteJSON(paths.JSON, records); err != nil {
		return nil, &Error{Kind: KindInternal, Stage: StepParse, Path: paths.JSON, Err: err}
	}
	timer.Done("JSON created")

	recode := []toolStep{{
		stage:  stage.NewRecode(p.exec, p.tools, paths.DedupPrefix, paths.ScoreVars(), paths.RecodePrefix),
		start:  "Extracting genotypes of used variants...",
		failed: "PLINK2 genotype extraction failed",
		done:   "Genotypes extracted",
	}}
	if err := p.runSteps(ctx, tr, recode); err != nil {
		return nil, err
	}

	fused, err := p.fuse(tr, ref, paths)
	if err != nil {
		return nil, err
	}

	annotationPath, err := p.annotate(tr, req.VariantFile, paths)
	if err != nil {
		return nil, err
	}

	if req.CleanScratch {
		p.cleanup(tr, paths)
	}

	return &Result{
		Status:     StatusSuccess,
		Results:    records[0],
		SampleName: paths.Sample,
		Records:    records,
		FusedRows:  fused,
		Artifacts: Artifacts{
			JSON:       paths.JSON,
			FusedTable: paths.FusedTable,
			Annotation: annotationPath,
		},
	}, nil
}

func (p *Pipeline) runSteps(ctx context.Context, tr *trail.Trail, steps []toolStep) error {
	for _, s := range steps {
		tr.Logf("%s", s.start)
		p.logger.Debug("stage", zap.String("name", s.stage.Name()), zap.String("cmd", stage.CommandLine(s.stage)))

		timer := tr.Step()
		art, err := s.stage.Execute(ctx)
		if err != nil {
			perr := stageError(s.stage.Name(), err)
			if perr.Diagnostic != "" {
				tr.Logf("%s: %s", s.failed, perr.Diagnostic)
			} else {
				tr.Logf("%s: %v", s.failed, err)
			}
			return perr
		}
		timer.Done("%s", s.done)
		p.logger.Debug("stage finished",
			zap.String("name", s.stage.Name()),
			zap.String("artifact", art.Path),
			zap.Strings("files", art.Files),
			zap.String("diagnostics", art.Diagnostics))
	}
	return nil
}

func (p *Pipeline) verifyFiltered(tr *trail.Trail, paths Paths) error {
	tr.Logf("Checking filtered VCF...")
	timer := tr.Step()
	summary, err := checkFiltered(paths.FilteredVCF)
	if err != nil {
		tr.Logf("Filtered VCF check failed: %v", err)
		return parseError(StepVerify, paths.FilteredVCF, err)
	}
	timer.Done("Filtered VCF holds %d variants for %s (%d heterozygous, %d homozygous alt)",
		summary.Variants, summary.Sample, summary.Heterozygous, summary.HomozygousAlt)
	return nil
}

func stageError(name string, err error) *Error {
	var exitErr *stage.ExitError
	if errors.As(err, &exitErr) {
		return &Error{Kind: KindStage, Stage: name, Diagnostic: exitErr.Diagnostic, Err: err}
	}
	var missing *stage.MissingArtifactError
	if errors.As(err, &missing) {
		return &Error{Kind: KindArtifactMissing, Stage: name, Path: missing.Path, Err: err}
	}
	return &Error{Kind: KindStage, Stage: name, Err: err}
}

func (p *Pipeline) fuse(tr *trail.Trail, ref config.Reference, paths Paths) (int, error) {
	tr.Logf("Merging score, frequency, and genotype data...")
	timer := tr.Step()

	used, err := fusion.LoadUsedVariants(paths.ScoreVars())
	if err != nil {
		return 0, parseError(StepFuse, paths.ScoreVars(), err)
	}
	weights, err := fusion.LoadScoreWeights(ref.ScoreFile)
	if err != nil {
		return 0, parseError(StepFuse, ref.ScoreFile, err)
	}
	freqs, err := fusion.LoadFrequencies(ref.FreqFile)
	if err != nil {
		return 0, parseError(StepFuse, ref.FreqFile, err)
	}
	genotypes, err := fusion.LoadGenotypeMatrix(paths.Raw())
	if err != nil {
		return 0, parseError(StepFuse, paths.Raw(), err)
	}

	table := fusion.Fuse(used, weights, freqs, genotypes)
	if missing := len(used) - table.Len(); missing > 0 {
		tr.Warnf("%d used variants have no entry in %s", missing, ref.ScoreFile)
	}
	if err := table.WriteFile(paths.FusedTable); err != nil {
		return 0, &Error{Kind: KindInternal, Stage: StepFuse, Path: paths.FusedTable, Err: err}
	}

	timer.Done("PRS table with %d variants written", table.Len())
	return table.Len(), nil
}

func (p *Pipeline) annotate(tr *trail.Trail, variantFile string, paths Paths) (string, error) {
	if p.annotation.Table == "" {
		tr.Logf("No drug annotation table configured, skipping intersection")
		return "", nil
	}

	tr.Logf("Intersecting variants with drug annotation table...")
	timer := tr.Step()

	samples, err := annotation.LoadSamplesFile(variantFile)
	if err != nil {
		// the unfiltered input is read here for the first time
		return "", &Error{Kind: KindInput, Stage: StepAnnotate, Path: variantFile, Err: err}
	}
	ref, err := annotation.LoadReference(p.annotation.Table, p.annotation.KeyColumn)
	if err != nil {
		return "", parseError(StepAnnotate, p.annotation.Table, err)
	}

	table := annotation.Intersect(samples, ref)
	if err := table.WriteFile(paths.Annotation); err != nil {
		return "", &Error{Kind: KindInternal, Stage: StepAnnotate, Path: paths.Annotation, Err: err}
	}

	timer.Done("Drug annotation intersection with %d variants written", table.Len())
	return paths.Annotation, nil
}

// cleanup removes scratch intermediates. Failures are logged, never returned.
func (p *Pipeline) cleanup(tr *trail.Trail, paths Paths) {
	tr.Logf("Cleaning up temporary files...")
	failed := 0
	for _, f := range paths.CleanupList() {
		if err := p.remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			failed++
			tr.Warnf("could not remove %s: %v", f, err)
			p.logger.Warn("cleanup failed", zap.String("path", f), zap.Error(err))
		}
	}
	if failed > 0 {
		tr.Logf("Temporary files removed (%d could not be removed)", failed)
		return
	}
	tr.Logf("Temporary files removed")
}

// record writes the run to the ledger, returning its ID. Ledger failures
// are logged and do not affect the run outcome.
func (p *Pipeline) record(ctx context.Context, req Request, build string, ref config.Reference, sample string,
	startedAt time.Time, elapsed time.Duration, res *Result, runErr error) string {
	if p.ledger == nil {
		return ""
	}

	run := store.Run{
		Sample:      sample,
		Build:       build,
		VariantFile: req.VariantFile,
		StartedAt:   startedAt,
		Duration:    elapsed,
	}
	if fp, err := store.StatFile(ref.ScoreFile); err == nil {
		run.Panel = fp
	}
	if runErr != nil {
		run.Status = store.StatusError
		run.Stage = StageOf(runErr)
		run.Error = runErr.Error()
	} else {
		run.Status = store.StatusSuccess
		run.Score = sql.NullFloat64{Float64: res.Results.Score, Valid: true}
		run.NumberOfSNPs = res.Results.NumberOfSNPs
		run.NumberOfSNPsUsed = res.Results.NumberOfSNPsUsed
	}

	id, err := p.ledger.RecordRun(context.WithoutCancel(ctx), run)
	if err != nil {
		p.logger.Warn("record run", zap.String("sample", sample), zap.Error(err))
		return ""
	}
	return id
}
