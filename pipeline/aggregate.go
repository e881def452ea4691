package pipeline

import (
	"sort"
	"strconv"
)

var (
	RankedHeader  = []string{"Rank", "Company Name", "Value", "Form Type", "CIK", "Date Filed", "File Name"}
	FailureHeader = []string{"Company Name", "Form Type", "CIK", "Date Filed", "File Name", "Error"}
)

type Report struct {
	Ranked   []RankedRow
	Failures []FailureRow
}

// Table is a rendered header plus rows, ready for any sink.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Aggregate splits outcomes and ranks the successes by value, largest first.
// Equal values keep the order in which they arrived.
func Aggregate(outcomes []Outcome) Report {
	var rep Report
	for _, o := range outcomes {
		if o.OK() {
			rep.Ranked = append(rep.Ranked, RankedRow{Record: o.Job.Record, Value: o.Value})
			continue
		}
		rep.Failures = append(rep.Failures, FailureRow{
			Line:   o.Job.Line,
			Record: o.Job.Record,
			Kind:   o.Kind,
			Reason: o.Reason,
		})
	}

	sort.SliceStable(rep.Ranked, func(i, j int) bool {
		return rep.Ranked[i].Value > rep.Ranked[j].Value
	})
	for i := range rep.Ranked {
		rep.Ranked[i].Rank = i + 1
	}
	return rep
}

func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (r Report) RankedTable() Table {
	t := Table{Name: "Ranked", Header: RankedHeader, Rows: make([][]string, 0, len(r.Ranked))}
	for _, row := range r.Ranked {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(row.Rank),
			row.Record.CompanyName,
			FormatValue(row.Value),
			row.Record.FormType,
			row.Record.CIK,
			row.Record.DateFiled,
			row.Record.FileName,
		})
	}
	return t
}

func (r Report) FailureTable() Table {
	t := Table{Name: "Failed", Header: FailureHeader, Rows: make([][]string, 0, len(r.Failures))}
	for _, row := range r.Failures {
		t.Rows = append(t.Rows, []string{
			row.Record.CompanyName,
			row.Record.FormType,
			row.Record.CIK,
			row.Record.DateFiled,
			row.Record.FileName,
			row.Reason,
		})
	}
	return t
}

// CountByKind tallies failures per outcome kind.
func (r Report) CountByKind() map[OutcomeKind]int {
	m := make(map[OutcomeKind]int)
	for _, f := range r.Failures {
		m[f.Kind]++
	}
	return m
}
