package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-prs/internal/config"
	"github.com/inodb/vibe-prs/internal/pipeline"
	"github.com/inodb/vibe-prs/internal/result"
	"github.com/inodb/vibe-prs/internal/store"
)

// fakeRunner records requests and returns a scripted outcome.
type fakeRunner struct {
	mu   sync.Mutex
	reqs []pipeline.Request
	run  func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, req)
	}
	return &pipeline.Result{
		Status:     pipeline.StatusSuccess,
		SampleName: pipeline.SampleName(req.VariantFile),
		Results:    result.RiskResult{ID: "lm5515", NumberOfSNPs: 16, NumberOfSNPsUsed: 8, Score: 0.25},
		RunID:      "run-1",
	}, nil
}

func (f *fakeRunner) last() pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := New(config.ServerConfig{}, &fakeRunner{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDPassthrough(t *testing.T) {
	s := New(config.ServerConfig{}, &fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestPredict_Success(t *testing.T) {
	runner := &fakeRunner{}
	s := New(config.ServerConfig{}, runner)

	w := post(t, s.Handler(), `{"variant_file": "/data/lm5515.vcf", "reference_build": "GRCh38"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "lm5515", body["sample_name"])
	results, ok := body["results"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(8), results["number_of_snps_used"])
	assert.InDelta(t, 0.25, results["score"], 1e-12)
	assert.Equal(t, "run-1", w.Header().Get("X-Run-ID"))

	req := runner.last()
	assert.Equal(t, "/data/lm5515.vcf", req.VariantFile)
	assert.Equal(t, "GRCh38", req.ReferenceBuild)
	assert.True(t, req.CleanScratch, "clean_scratch defaults to true")
}

func TestPredict_RequestMapping(t *testing.T) {
	tests := []struct {
		name      string
		inputRoot string
		body      string
		want      pipeline.Request
	}{
		{
			name: "legacy names",
			body: `{"vcf_file": "/d/s.vcf", "assembly": "GRCh37", "clean_tmp": false}`,
			want: pipeline.Request{VariantFile: "/d/s.vcf", ReferenceBuild: "GRCh37", CleanScratch: false},
		},
		{
			name: "current names win",
			body: `{"variant_file": "/d/a.vcf", "vcf_file": "/d/b.vcf", "clean_scratch": false, "clean_tmp": true}`,
			want: pipeline.Request{VariantFile: "/d/a.vcf", CleanScratch: false},
		},
		{
			name:      "relative path under input root",
			inputRoot: "/srv/uploads",
			body:      `{"variant_file": "s.vcf"}`,
			want:      pipeline.Request{VariantFile: "/srv/uploads/s.vcf", CleanScratch: true},
		},
		{
			name:      "absolute path ignores input root",
			inputRoot: "/srv/uploads",
			body:      `{"variant_file": "/tmp/s.vcf"}`,
			want:      pipeline.Request{VariantFile: "/tmp/s.vcf", CleanScratch: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			s := New(config.ServerConfig{InputRoot: tt.inputRoot}, runner)
			w := post(t, s.Handler(), tt.body)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, runner.last())
		})
	}
}

func TestPredict_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"variant_file": `, "invalid request body"},
		{"missing variant file", `{"reference_build": "GRCh37"}`, "variant_file is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			s := New(config.ServerConfig{}, runner)
			w := post(t, s.Handler(), tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			assert.Equal(t, "error", body["status"])
			assert.Contains(t, body["error"], tt.want)
			assert.Empty(t, runner.reqs)
		})
	}
}

func TestPredict_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "missing input",
			err:    &pipeline.Error{Kind: pipeline.KindInput, Path: "/d/x.vcf", Err: fmt.Errorf("input variant file: %w", fs.ErrNotExist)},
			status: http.StatusNotFound,
		},
		{
			name:   "unknown build",
			err:    &pipeline.Error{Kind: pipeline.KindInput, Err: errors.New(`unknown reference build "hg19"`)},
			status: http.StatusBadRequest,
		},
		{
			name:   "stage failure",
			err:    &pipeline.Error{Kind: pipeline.KindStage, Stage: "filter", Diagnostic: "[E::bcf] bad header", Err: errors.New("filter stage failed: exit status 255: [E::bcf] bad header")},
			status: http.StatusInternalServerError,
		},
		{
			name:   "missing artifact",
			err:    &pipeline.Error{Kind: pipeline.KindArtifactMissing, Stage: "convert", Err: errors.New("missing .fam")},
			status: http.StatusInternalServerError,
		},
		{
			name:   "malformed input vcf",
			err:    &pipeline.Error{Kind: pipeline.KindInput, Stage: "annotate", Path: "/d/x.vcf", Err: errors.New("vcf parse error at line 3: invalid position: x")},
			status: http.StatusBadRequest,
		},
		{
			name:   "parse failure",
			err:    &pipeline.Error{Kind: pipeline.KindParse, Stage: "parse", Err: errors.New("no data rows found")},
			status: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{run: func(context.Context, pipeline.Request) (*pipeline.Result, error) {
				return nil, tt.err
			}}
			s := New(config.ServerConfig{}, runner)
			w := post(t, s.Handler(), `{"variant_file": "/d/x.vcf"}`)
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestPredict_ClientDisconnectDoesNotCancelRun(t *testing.T) {
	var runErr error
	runner := &fakeRunner{run: func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
		runErr = ctx.Err()
		return &pipeline.Result{Status: pipeline.StatusSuccess, SampleName: "x"}, nil
	}}
	s := New(config.ServerConfig{}, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"variant_file": "/d/x.vcf"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, runErr)
}

func TestPredict_StageErrorCarriesDiagnostic(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, pipeline.Request) (*pipeline.Result, error) {
		return nil, &pipeline.Error{Kind: pipeline.KindStage, Stage: "score", Err: errors.New("score stage failed: exit status 7: Error: No variants remaining")}
	}}
	s := New(config.ServerConfig{}, runner)
	w := post(t, s.Handler(), `{"variant_file": "/d/x.vcf"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	msg := decode(t, w)["error"].(string)
	assert.Contains(t, msg, "[score]")
	assert.Contains(t, msg, "No variants remaining")
}

func TestPredict_SameSampleConflict(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := &fakeRunner{}
	runner.run = func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
		if pipeline.SampleName(req.VariantFile) == "busy" {
			close(started)
			<-release
		}
		return &pipeline.Result{Status: pipeline.StatusSuccess, SampleName: pipeline.SampleName(req.VariantFile)}, nil
	}
	s := New(config.ServerConfig{}, runner)

	done := make(chan int)
	go func() {
		done <- post(t, s.Handler(), `{"variant_file": "/a/busy.vcf"}`).Code
	}()
	<-started

	// Same sample name from a different directory still collides.
	w := post(t, s.Handler(), `{"variant_file": "/b/busy.vcf.gz"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// A different sample is not blocked.
	w = post(t, s.Handler(), `{"variant_file": "/a/other.vcf"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)

	// Released after completion.
	runner.run = nil
	w = post(t, s.Handler(), `{"variant_file": "/a/busy.vcf"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPredict_RateLimit(t *testing.T) {
	s := New(config.ServerConfig{RateLimit: 0.001, RateBurst: 1}, &fakeRunner{})

	assert.Equal(t, http.StatusOK, post(t, s.Handler(), `{"variant_file": "/d/a.vcf"}`).Code)
	w := post(t, s.Handler(), `{"variant_file": "/d/b.vcf"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Health is not rate limited.
	hw := httptest.NewRecorder()
	s.Handler().ServeHTTP(hw, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, hw.Code)
}

func TestListRuns(t *testing.T) {
	ledger, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err = ledger.RecordRun(ctx, store.Run{
		ID: "r1", Sample: "lm5515", Build: "GRCh37", Status: store.StatusSuccess,
		Score: sql.NullFloat64{Float64: 0.25, Valid: true}, NumberOfSNPsUsed: 8, StartedAt: base,
		Panel: store.FileFingerprint{Path: "/ref/panel.txt", Size: 42, ModTime: base},
	})
	require.NoError(t, err)
	_, err = ledger.RecordRun(ctx, store.Run{
		ID: "r2", Sample: "other", Status: store.StatusError, Stage: "filter", StartedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)

	s := New(config.ServerConfig{}, &fakeRunner{})
	s.SetRunLister(ledger)

	t.Run("filtered by sample", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs?sample=lm5515", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Runs []runView `json:"runs"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Runs, 1)
		assert.Equal(t, "r1", body.Runs[0].ID)
		require.NotNil(t, body.Runs[0].Score)
		assert.InDelta(t, 0.25, *body.Runs[0].Score, 1e-12)
		assert.Equal(t, "2026-05-01T12:00:00Z", body.Runs[0].StartedAt)
		assert.Equal(t, "/ref/panel.txt (42 bytes, 2026-05-01T12:00:00Z)", body.Runs[0].Panel)
	})

	t.Run("all samples", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Runs []runView `json:"runs"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Runs, 2)
		assert.Equal(t, "r2", body.Runs[0].ID)
		assert.Nil(t, body.Runs[0].Score)
		assert.Equal(t, "filter", body.Runs[0].Stage)
	})

	t.Run("bad limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs?limit=x", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListRuns_Disabled(t *testing.T) {
	s := New(config.ServerConfig{}, &fakeRunner{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStart_Shutdown(t *testing.T) {
	s := New(config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second}, &fakeRunner{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
