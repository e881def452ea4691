package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumrank/crawler/pipeline"
)

func succeeded(name string, v float64) pipeline.Outcome {
	return pipeline.Outcome{
		Job:   pipeline.Job{Record: pipeline.Record{CompanyName: name}},
		Kind:  pipeline.KindSuccess,
		Value: v,
	}
}

func TestAggregate_RanksByValueDescending(t *testing.T) {
	rep := pipeline.Aggregate([]pipeline.Outcome{
		succeeded("small", 10),
		succeeded("large", 1e9),
		succeeded("mid", 5000.5),
	})

	require.Len(t, rep.Ranked, 3)
	assert.Equal(t, "large", rep.Ranked[0].Record.CompanyName)
	assert.Equal(t, "mid", rep.Ranked[1].Record.CompanyName)
	assert.Equal(t, "small", rep.Ranked[2].Record.CompanyName)
	for i, r := range rep.Ranked {
		assert.Equal(t, i+1, r.Rank)
	}
	assert.Empty(t, rep.Failures)
}

func TestAggregate_TiesKeepArrivalOrder(t *testing.T) {
	rep := pipeline.Aggregate([]pipeline.Outcome{
		succeeded("A", 500),
		succeeded("B", 500),
		succeeded("C", 900),
	})

	var names []string
	var ranks []int
	for _, r := range rep.Ranked {
		names = append(names, r.Record.CompanyName)
		ranks = append(ranks, r.Rank)
	}
	assert.Equal(t, []string{"C", "A", "B"}, names)
	assert.Equal(t, []int{1, 2, 3}, ranks)
}

func TestAggregate_SplitsFailures(t *testing.T) {
	rep := pipeline.Aggregate([]pipeline.Outcome{
		succeeded("fine", 1),
		{Job: pipeline.Job{Line: 4}, Kind: pipeline.KindHTTPStatusError, Reason: "http status 404"},
		{Job: pipeline.Job{Line: 9}, Kind: pipeline.KindExtractionMiss, Reason: "value not found"},
		{Job: pipeline.Job{Line: 2}, Kind: pipeline.KindHTTPStatusError, Reason: "http status 500"},
	})

	require.Len(t, rep.Ranked, 1)
	require.Len(t, rep.Failures, 3)
	assert.Equal(t, 4, rep.Failures[0].Line)
	assert.Equal(t, "value not found", rep.Failures[1].Reason)

	counts := rep.CountByKind()
	assert.Equal(t, 2, counts[pipeline.KindHTTPStatusError])
	assert.Equal(t, 1, counts[pipeline.KindExtractionMiss])
}

func TestAggregate_Empty(t *testing.T) {
	rep := pipeline.Aggregate(nil)
	assert.Empty(t, rep.Ranked)
	assert.Empty(t, rep.Failures)
	assert.Empty(t, rep.RankedTable().Rows)
	assert.Equal(t, pipeline.RankedHeader, rep.RankedTable().Header)
}

func TestReport_Tables(t *testing.T) {
	rec := pipeline.Record{
		CompanyName: "VANGUARD GROUP INC",
		FormType:    "13F-HR",
		CIK:         "0000102909",
		DateFiled:   "20250212",
		FileName:    "edgar/data/102909/x.txt",
	}
	rep := pipeline.Aggregate([]pipeline.Outcome{
		{Job: pipeline.Job{Record: rec}, Kind: pipeline.KindSuccess, Value: 1234567.5},
		{Job: pipeline.Job{Record: rec}, Kind: pipeline.KindTransportError, Reason: "request error: timeout"},
	})

	ranked := rep.RankedTable()
	assert.Equal(t, "Ranked", ranked.Name)
	assert.Equal(t, []string{"Rank", "Company Name", "Value", "Form Type", "CIK", "Date Filed", "File Name"}, ranked.Header)
	assert.Equal(t, [][]string{{"1", "VANGUARD GROUP INC", "1234567.5", "13F-HR", "0000102909", "20250212", "edgar/data/102909/x.txt"}}, ranked.Rows)

	failed := rep.FailureTable()
	assert.Equal(t, "Failed", failed.Name)
	assert.Equal(t, []string{"Company Name", "Form Type", "CIK", "Date Filed", "File Name", "Error"}, failed.Header)
	assert.Equal(t, [][]string{{"VANGUARD GROUP INC", "13F-HR", "0000102909", "20250212", "edgar/data/102909/x.txt", "request error: timeout"}}, failed.Rows)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "1234567", pipeline.FormatValue(1234567))
	assert.Equal(t, "0.25", pipeline.FormatValue(0.25))
	assert.Equal(t, "25000000000", pipeline.FormatValue(2.5e10))
}
