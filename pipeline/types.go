package pipeline

import (
	"strings"
	"sync/atomic"
)

// Record is one filing entry from the filtered index.
type Record struct {
	CompanyName string
	FormType    string
	CIK         string
	DateFiled   string
	FileName    string
}

// Job is a parsed input line. A non-empty Problem marks the line as malformed;
// such jobs are classified without touching the network.
type Job struct {
	Line    int
	Record  Record
	Problem string
}

// Malformed returns why the job cannot be fetched, or "" when it can.
func (j Job) Malformed() string {
	if j.Problem != "" {
		return j.Problem
	}
	if strings.TrimSpace(j.Record.FileName) == "" {
		return ProblemMissingFileName
	}
	return ""
}

type OutcomeKind int

const (
	KindSuccess OutcomeKind = iota
	KindMalformedInput
	KindTransportError
	KindHTTPStatusError
	KindExtractionMiss
	KindCancelled
	KindPanic
)

func (k OutcomeKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindMalformedInput:
		return "malformed_input"
	case KindTransportError:
		return "transport_error"
	case KindHTTPStatusError:
		return "http_status_error"
	case KindExtractionMiss:
		return "extraction_miss"
	case KindCancelled:
		return "cancelled"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Outcome is the terminal classification of one job. Value is set only for
// KindSuccess, Reason only for the failure kinds.
type Outcome struct {
	Job    Job
	Kind   OutcomeKind
	Value  float64
	Reason string
}

func (o Outcome) OK() bool { return o.Kind == KindSuccess }

func success(job Job, v float64) Outcome {
	return Outcome{Job: job, Kind: KindSuccess, Value: v}
}

func failure(job Job, kind OutcomeKind, reason string) Outcome {
	return Outcome{Job: job, Kind: kind, Reason: reason}
}

type RankedRow struct {
	Rank   int
	Record Record
	Value  float64
}

type FailureRow struct {
	Line   int
	Record Record
	Kind   OutcomeKind
	Reason string
}

type Stats struct {
	Read        atomic.Int64
	Malformed   atomic.Int64
	Fetched     atomic.Int64
	FetchErrors atomic.Int64
	Extracted   atomic.Int64
	Misses      atomic.Int64
	Cancelled   atomic.Int64
}

var PipelineStats Stats
