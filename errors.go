package extsort

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyChunk is returned by a sort task that read no values for a
	// chunk the partition expected to be non-empty.
	ErrEmptyChunk = errors.New("chunk is empty")

	// ErrQueueClosed is returned when a run is published after the queue
	// was closed or cancelled. The run is discarded.
	ErrQueueClosed = errors.New("queue closed")

	// ErrCanceled is returned when the job was aborted before producing a
	// terminal run and no task recorded a more specific error.
	ErrCanceled = errors.New("sort canceled")
)

const (
	stagePartition = "partition"
	stageFinalize  = "finalize"
)

// StageError records which stage of the pipeline failed, and on which run.
type StageError struct {
	Stage string
	Run   string
	Err   error
}

func (e *StageError) Error() string {
	if e.Run == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Run, e.Err)
}

func (e *StageError) Cause() error {
	return e.Err
}

func (e *StageError) Unwrap() error {
	return e.Err
}
