package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/block/spooler/pkg/spool"
	"github.com/siddontang/loggers"
)

// waitDelay bounds how long Wait blocks on output pipes after the tool is killed.
const waitDelay = 5 * time.Second

// ToolWorker runs an external bulk export tool for each task. The tool
// writes the destination file itself, so row counts are unknown.
type ToolWorker struct {
	Tool   spool.Tool
	Logger loggers.Advanced
}

var _ Worker = (*ToolWorker)(nil)

// Run writes the tool script and a command file next to the destination
// and waits for the tool to exit.
func (w *ToolWorker) Run(ctx context.Context, task Task) Result {
	id := task.Partition.ID
	res := Result{PartitionID: id, Path: task.Path, Rows: Unknown()}
	fail := func(exitCode int, stderr string, err error) Result {
		res.Err = &PartitionExecutionError{PartitionID: id, ExitCode: exitCode, Stderr: stderr, Err: err}

		return res
	}

	base := strings.TrimSuffix(task.Path, filepath.Ext(task.Path))
	scriptPath := base + ".sql"
	cmdPath := base + ".cmd"

	script, err := w.Tool.Script(task.Path, task.Query)
	if err != nil {
		return fail(0, "", err)
	}
	if err = os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return fail(0, "", fmt.Errorf("failed to write script: %w", err))
	}
	if err = os.WriteFile(cmdPath, []byte(w.Tool.CommandFile(scriptPath)), 0o755); err != nil { //nolint:gosec // the command file is meant to be executable
		return fail(0, "", fmt.Errorf("failed to write command file: %w", err))
	}

	argv := w.Tool.Command(scriptPath)
	if len(argv) == 0 {
		return fail(0, "", errors.New("tool returned an empty command"))
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	cmd.Env = append(os.Environ(), w.Tool.Env()...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err = cmd.Start(); err != nil {
		return fail(0, "", fmt.Errorf("failed to start %s: %w", argv[0], err))
	}
	if err = cmd.Wait(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}

		return fail(exitCode, strings.TrimSpace(stderr.String()), err)
	}
	if w.Logger != nil && stdout.Len() > 0 {
		w.Logger.Debugf("partition %d tool output: %s", id, strings.TrimSpace(stdout.String()))
	}

	return res
}
