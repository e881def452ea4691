package pipeline_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumrank/crawler/pipeline"
)

// filingServer serves /ok/N with a value of N thousand, /status/CODE with
// that status, and anything else as a filing with no recognisable figure.
func filingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch parts[0] {
		case "ok":
			fmt.Fprintf(w, "<summaryPage><tableValueTotal>%s,000</tableValueTotal></summaryPage>", parts[1])
		case "status":
			code, _ := strconv.Atoi(parts[1])
			w.WriteHeader(code)
		default:
			w.Write([]byte("<html><body>Cover page only. Holdings reported by another manager.</body></html>"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func indexRow(company, fileName string) string {
	return company + "    13F-HR    1000    20250214    " + fileName
}

func pipelineConfig(t *testing.T, srv *httptest.Server, lines []string) pipeline.Config {
	t.Helper()
	cfg := testConfig(t, srv.URL+"/")
	cfg.Rate.PerSecond = 1000
	cfg.Input = filepath.Join(t.TempDir(), "filtered_output.txt")
	cfg.Output.XLSX = filepath.Join(filepath.Dir(cfg.Output.RankedCSV), "aum_report.xlsx")
	require.NoError(t, os.WriteFile(cfg.Input, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return cfg
}

// -- Pipeline end to end -------------------------------------------------------

func TestPipeline_RanksSuccessesAndReportsFailures(t *testing.T) {
	srv := filingServer(t)

	var lines []string
	for i := 1; i <= 95; i++ {
		lines = append(lines, indexRow(fmt.Sprintf("FUND %d", i), fmt.Sprintf("ok/%d", i)))
	}
	lines = append(lines,
		indexRow("GONE LLC", "status/404"),
		indexRow("BROKEN LLC", "status/500"),
		indexRow("BUSY LLC", "status/503"),
		indexRow("COVER ONE", "cover/1"),
		indexRow("COVER TWO", "cover/2"),
	)
	cfg := pipelineConfig(t, srv, lines)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := pipeline.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Jobs)

	ranked := readCSV(t, cfg.Output.RankedCSV)
	require.Len(t, ranked, 96)
	assert.Equal(t, []string{"1", "FUND 95", "95000", "13F-HR", "1000", "20250214", "ok/95"}, ranked[1])
	assert.Equal(t, []string{"95", "FUND 1", "1000", "13F-HR", "1000", "20250214", "ok/1"}, ranked[95])
	for i := 1; i < len(ranked); i++ {
		assert.Equal(t, strconv.Itoa(i), ranked[i][0])
		if i > 1 {
			prev, _ := strconv.ParseFloat(ranked[i-1][2], 64)
			cur, _ := strconv.ParseFloat(ranked[i][2], 64)
			assert.GreaterOrEqual(t, prev, cur)
		}
	}

	failed := readCSV(t, cfg.Output.FailedCSV)
	require.Len(t, failed, 6)
	reasons := make(map[string]string)
	for _, row := range failed[1:] {
		reasons[row[0]] = row[5]
	}
	assert.Equal(t, map[string]string{
		"GONE LLC":   "http status 404",
		"BROKEN LLC": "http status 500",
		"BUSY LLC":   "http status 503",
		"COVER ONE":  "value not found",
		"COVER TWO":  "value not found",
	}, reasons)

	sample, err := os.ReadFile(cfg.Output.Sample)
	require.NoError(t, err)
	assert.Contains(t, string(sample), "Cover page only")

	_, err = os.Stat(cfg.Output.XLSX)
	assert.NoError(t, err)
}

func TestPipeline_MalformedLinesNeverFetched(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("AUM: 10"))
	}))
	defer srv.Close()

	cfg := pipelineConfig(t, srv, []string{
		"ORPHAN FUND    13F-HR    42",
		"",
		indexRow("WHOLE FUND", "a.txt"),
	})
	cfg.Concurrency = 1

	res, err := pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Jobs, "blank lines yield no job")
	assert.Equal(t, int64(1), hits.Load())
	require.Len(t, res.Report.Failures, 1)
	assert.Equal(t, pipeline.KindMalformedInput, res.Report.Failures[0].Kind)
	assert.Equal(t, "not enough fields", res.Report.Failures[0].Reason)
	assert.Equal(t, 1, res.Report.Failures[0].Line)
}

func TestPipeline_EmptyInputWritesHeaders(t *testing.T) {
	srv := filingServer(t)
	cfg := pipelineConfig(t, srv, nil)

	res, err := pipeline.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Zero(t, res.Jobs)

	assert.Equal(t, [][]string{pipeline.RankedHeader}, readCSV(t, cfg.Output.RankedCSV))
	assert.Equal(t, [][]string{pipeline.FailureHeader}, readCSV(t, cfg.Output.FailedCSV))
}

func TestPipeline_CancelledRunStillAccountsForEveryJob(t *testing.T) {
	srv := filingServer(t)

	var jobs []pipeline.Job
	for i := 1; i <= 30; i++ {
		job, ok := pipeline.ParseLine(i, indexRow("FUND", fmt.Sprintf("ok/%d", i)))
		require.True(t, ok)
		jobs = append(jobs, job)
	}
	cfg := pipelineConfig(t, srv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := pipeline.Process(ctx, cfg, jobs)
	require.NoError(t, err)

	assert.Empty(t, res.Report.Ranked)
	require.Len(t, res.Report.Failures, 30)
	for _, f := range res.Report.Failures {
		assert.Equal(t, pipeline.KindCancelled, f.Kind)
	}
}

func TestPipeline_InvalidConfig(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.Concurrency = 0
	_, err := pipeline.Run(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid config")
}
