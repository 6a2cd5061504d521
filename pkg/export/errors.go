package export

import (
	"errors"
	"fmt"
)

var ErrPartitionExecution = errors.New("partition execution failed")

// PartitionExecutionError reports a failed partition. ExitCode is set when an
// external tool exited non-zero; Rows holds what was written before a
// streaming failure.
type PartitionExecutionError struct {
	PartitionID int
	ExitCode    int
	Stderr      string
	Rows        int64
	Err         error
}

func (e *PartitionExecutionError) Error() string {
	msg := fmt.Sprintf("partition %d", e.PartitionID)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" exited with code %d", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *PartitionExecutionError) Unwrap() error {
	return e.Err
}

func (e *PartitionExecutionError) Is(target error) bool {
	return target == ErrPartitionExecution
}
