package partition

import (
	"errors"
	"fmt"
)

var (
	ErrRangeQuery = errors.New("range query failed")

	errEmptyTable = errors.New("table has no rows")
	errNullBounds = errors.New("key bounds are NULL")
)

// RangeQueryError reports that the partition bounds could not be determined.
type RangeQueryError struct {
	Table string
	Key   string
	Err   error
}

func (e *RangeQueryError) Error() string {
	return fmt.Sprintf("range query on %s(%s): %v", e.Table, e.Key, e.Err)
}

func (e *RangeQueryError) Unwrap() error {
	return e.Err
}

func (e *RangeQueryError) Is(target error) bool {
	return target == ErrRangeQuery
}
