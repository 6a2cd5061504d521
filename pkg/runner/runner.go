// Package runner contains the logic for running the exports of a project.
package runner

import (
	"context"
	"time"
)

type Status int64

const (
	Started Status = iota
	Running
	Failed
	Errored
	Succeeded
)

var statusInterval = 30 * time.Second

func (s Status) String() string {
	switch s {
	case Started:
		return "started"
	case Running:
		return "running"
	case Failed:
		return "failed"
	case Errored:
		return "errored"
	case Succeeded:
		return "succeeded"
	}

	return "unknown"
}

type Runner interface {
	Prepare() string
	Run(ctx context.Context) error
	Close() error
}
