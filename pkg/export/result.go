package export

import (
	"slices"

	"github.com/samber/lo"
)

type Status int

const (
	Succeeded Status = iota
	PartialFailure
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case PartialFailure:
		return "partial-failure"
	case Failed:
		return "failed"
	}

	return "unknown"
}

// Result is the outcome of one partition. PartitionID 0 is an unpartitioned
// export.
type Result struct {
	PartitionID int
	Path        string
	Rows        RowCount
	Err         error
}

func (r Result) Succeeded() bool {
	return r.Err == nil
}

// JobResult aggregates the partition results of one job.
type JobResult struct {
	Dir       string
	Delimiter rune
	Table     string
	// Results are ordered by partition ID.
	Results []Result
}

func newJobResult(j *Job, results []Result) *JobResult {
	slices.SortFunc(results, func(a, b Result) int {
		return a.PartitionID - b.PartitionID
	})

	return &JobResult{
		Dir:       j.Dir,
		Delimiter: j.Delimiter,
		Table:     j.Table.QualifiedName(),
		Results:   results,
	}
}

// TotalRows is unknown when any partition's count is unknown.
func (jr *JobResult) TotalRows() RowCount {
	return lo.Reduce(jr.Results, func(acc RowCount, r Result, _ int) RowCount {
		return acc.Add(r.Rows)
	}, Known(0))
}

// KnownRows sums the counts that are known.
func (jr *JobResult) KnownRows() int64 {
	return lo.SumBy(jr.Results, func(r Result) int64 {
		n, _ := r.Rows.Value()
		return n
	})
}

func (jr *JobResult) Failed() []Result {
	return lo.Filter(jr.Results, func(r Result, _ int) bool {
		return !r.Succeeded()
	})
}

// Files returns the number of files written successfully.
func (jr *JobResult) Files() int {
	return lo.CountBy(jr.Results, Result.Succeeded)
}

func (jr *JobResult) Status() Status {
	failed := len(jr.Failed())
	switch {
	case failed == 0:
		return Succeeded
	case failed == len(jr.Results):
		return Failed
	default:
		return PartialFailure
	}
}
