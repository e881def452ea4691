package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

const (
	ProblemNotEnoughFields = "not enough fields"
	ProblemMissingFileName = "missing filename"
)

// fieldSep also counts Unicode spaces such as NBSP, which RE2's \s leaves out.
var fieldSep = regexp.MustCompile(`[\s\p{Z}\x{85}]{2,}`)

// ParseLine splits an index line on runs of two or more whitespace
// characters. Blank lines report ok=false and produce no job. A line with
// five fields always carries a file name; an empty one can only come from a
// Job built in code, which Fetcher.Run checks.
func ParseLine(n int, line string) (job Job, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Job{}, false
	}

	fields := fieldSep.Split(line, -1)
	job = Job{Line: n, Record: recordFromFields(fields)}

	if len(fields) < 5 {
		job.Problem = ProblemNotEnoughFields
	}
	return job, true
}

func recordFromFields(fields []string) Record {
	var r Record
	dst := []*string{&r.CompanyName, &r.FormType, &r.CIK, &r.DateFiled, &r.FileName}
	for i := 0; i < len(dst) && i < len(fields); i++ {
		*dst[i] = strings.TrimSpace(fields[i])
	}
	return r
}

// ReadInput parses every non-blank line of r into a job.
func ReadInput(r io.Reader) ([]Job, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var jobs []Job
	n := 0
	for sc.Scan() {
		n++
		if job, ok := ParseLine(n, sc.Text()); ok {
			jobs = append(jobs, job)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input line %d: %w", n+1, err)
	}
	PipelineStats.Read.Add(int64(len(jobs)))
	return jobs, nil
}

// ReadInputFile reads path, or stdin when path is "-".
func ReadInputFile(path string) ([]Job, error) {
	if path == "-" {
		return ReadInput(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return ReadInput(f)
}
