package server

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inodb/vibe-prs/internal/pipeline"
	"github.com/inodb/vibe-prs/internal/store"
)

// predictRequest is the POST /predict body. The vcf_file, assembly and
// clean_tmp names are accepted for older clients.
type predictRequest struct {
	VariantFile    string `json:"variant_file"`
	VCFFile        string `json:"vcf_file"`
	ReferenceBuild string `json:"reference_build"`
	Assembly       string `json:"assembly"`
	CleanScratch   *bool  `json:"clean_scratch"`
	CleanTmp       *bool  `json:"clean_tmp"`
}

func (r predictRequest) toRequest(inputRoot string) pipeline.Request {
	req := pipeline.Request{
		VariantFile:    firstNonEmpty(r.VariantFile, r.VCFFile),
		ReferenceBuild: firstNonEmpty(r.ReferenceBuild, r.Assembly),
		CleanScratch:   true,
	}
	switch {
	case r.CleanScratch != nil:
		req.CleanScratch = *r.CleanScratch
	case r.CleanTmp != nil:
		req.CleanScratch = *r.CleanTmp
	}
	if inputRoot != "" && req.VariantFile != "" && !filepath.IsAbs(req.VariantFile) {
		req.VariantFile = filepath.Join(inputRoot, req.VariantFile)
	}
	return req
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func errorBody(msg string) gin.H {
	return gin.H{"status": "error", "error": msg}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": ServiceName,
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	var body predictRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return
	}
	req := body.toRequest(s.cfg.InputRoot)
	if req.VariantFile == "" {
		c.JSON(http.StatusBadRequest, errorBody("variant_file is required"))
		return
	}

	sample := pipeline.SampleName(req.VariantFile)
	if !s.inflight.acquire(sample) {
		c.JSON(http.StatusConflict, errorBody("a run for sample "+sample+" is already in progress"))
		return
	}
	defer s.inflight.release(sample)

	// Stages run to completion even if the client goes away.
	res, err := s.runner.Run(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("predict failed",
				zap.String("sample", sample),
				zap.String("request_id", c.GetString("request_id")),
				zap.Error(err))
		}
		c.JSON(status, errorBody(err.Error()))
		return
	}

	if res.RunID != "" {
		c.Header("X-Run-ID", res.RunID)
	}
	c.JSON(http.StatusOK, res)
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch {
	case pipeline.IsNotFound(err):
		return http.StatusNotFound
	case pipeline.IsInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// runView is the JSON form of a ledger entry.
type runView struct {
	ID               string   `json:"run_id"`
	Sample           string   `json:"sample"`
	Build            string   `json:"build"`
	VariantFile      string   `json:"variant_file"`
	Status           string   `json:"status"`
	Stage            string   `json:"stage,omitempty"`
	Error            string   `json:"error,omitempty"`
	Score            *float64 `json:"score,omitempty"`
	NumberOfSNPs     int      `json:"number_of_snps"`
	NumberOfSNPsUsed int      `json:"number_of_snps_used"`
	StartedAt        string   `json:"started_at"`
	DurationSeconds  float64  `json:"duration_seconds"`
	Panel            string   `json:"panel,omitempty"`
}

func newRunView(r store.Run) runView {
	v := runView{
		ID:               r.ID,
		Sample:           r.Sample,
		Build:            r.Build,
		VariantFile:      r.VariantFile,
		Status:           r.Status,
		Stage:            r.Stage,
		Error:            r.Error,
		NumberOfSNPs:     r.NumberOfSNPs,
		NumberOfSNPsUsed: r.NumberOfSNPsUsed,
		StartedAt:        r.StartedAt.UTC().Format(time.RFC3339),
		DurationSeconds:  r.Duration.Seconds(),
		Panel:            r.Panel.String(),
	}
	if r.Score.Valid {
		score := r.Score.Float64
		v.Score = &score
	}
	return v
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotFound, errorBody("run ledger is disabled"))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorBody("invalid limit "+strconv.Quote(raw)))
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(c.Request.Context(), c.Query("sample"), limit)
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}

	views := make([]runView, 0, len(runs))
	for _, r := range runs {
		views = append(views, newRunView(r))
	}
	c.JSON(http.StatusOK, gin.H{"runs": views})
}
