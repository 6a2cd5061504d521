package runner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/block/spooler/pkg/export"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
)

func writeSummary(w io.Writer, results []*TableResult) error {
	tbl := uitable.New()
	tbl.MaxColWidth = 80
	tbl.Wrap = true
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	tbl.AddRow(headerfmt("TABLE"), headerfmt("STATUS"), headerfmt("FILES"), headerfmt("ROWS"),
		headerfmt("SIZE"), headerfmt("DURATION"), headerfmt("FAILED PARTITIONS"))
	for _, res := range results {
		files, rows, size, failed := "-", "-", "-", "-"
		if res.Job != nil {
			files = humanize.Comma(int64(res.Job.Files()))
			rows = formatRows(res.Job.TotalRows())
			size = localSize(res.Job)
			failed = failedPartitions(res.Job)
		} else if res.Err != nil {
			failed = res.Err.Error()
		}
		tbl.AddRow(res.Table, res.Status(), files, rows, size, res.Duration.Round(time.Millisecond), failed)
	}
	_, err := fmt.Fprintf(w, "\n%s\n\n", tbl)

	return err
}

func formatRows(rc export.RowCount) string {
	n, ok := rc.Value()
	if !ok {
		return rc.String()
	}

	return humanize.Comma(n)
}

// localSize sums the files still on local disk. Uploaded files are skipped.
func localSize(jr *export.JobResult) string {
	var total uint64
	for _, r := range jr.Results {
		if !r.Succeeded() || strings.Contains(r.Path, "://") {
			continue
		}
		if fi, err := os.Stat(r.Path); err == nil {
			total += uint64(fi.Size())
		}
	}

	return humanize.Bytes(total)
}

func failedPartitions(jr *export.JobResult) string {
	failed := jr.Failed()
	if len(failed) == 0 {
		return "-"
	}
	ids := make([]string, len(failed))
	for i, r := range failed {
		ids[i] = fmt.Sprint(r.PartitionID)
	}

	return strings.Join(ids, ",")
}
