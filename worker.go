package extsort

import (
	"context"
	"io"

	"github.com/convox/logger"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/rem1niscence/extsort/store"
)

// mergeBufferSize is the number of merged values collected before they are
// appended to the output run.
const mergeBufferSize = 4096

// Worker performs the sort and merge tasks of one job. Every worker of a job
// shares the same queue and store.
type Worker struct {
	Input store.Input
	Store store.RunStore
	Queue *Queue[string]

	// Keep disables removing runs once they have been merged.
	Keep bool

	// Published is called after a run has been handed to the queue.
	Published func(taskType, run string)

	log *logger.Logger
}

// PerformTask performs the given task based on the task type. Available task
// types are SortTask and MergeTask, which are defined in task.go.
func (w *Worker) PerformTask(ctx context.Context, task Task) error {
	var err error

	switch task.Type {
	case SortTask:
		err = w.Sort(ctx, task.Chunk, task.Run)
	case MergeTask:
		err = w.Merge(ctx, task.Run)
	default:
		return errors.Errorf("unknown task type: %s", task.Type)
	}

	if errors.Is(err, ErrQueueClosed) {
		w.logger().At(task.Type).Logf("run=%s state=discarded", task.Run)
		return nil
	}

	return err
}

// Sort reads one chunk of the input, sorts it and publishes it as run id. A
// chunk with no values produces no run.
func (w *Worker) Sort(ctx context.Context, chunk Chunk, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	values, err := w.Input.ReadAt(chunk.Offset, chunk.Count)
	if err != nil {
		return &StageError{Stage: SortTask, Run: id, Err: errors.Wrap(err, "read input")}
	}
	if len(values) == 0 {
		return &StageError{Stage: SortTask, Run: id, Err: errors.Wrapf(ErrEmptyChunk, "chunk %d at offset %d", chunk.Index, chunk.Offset)}
	}

	slices.Sort(values)

	if err := w.write(id, values); err != nil {
		return &StageError{Stage: SortTask, Run: id, Err: err}
	}

	w.logger().At(SortTask).Logf("run=%s chunk=%d offset=%d count=%d", id, chunk.Index, chunk.Offset, len(values))

	return w.publish(SortTask, id)
}

// Merge takes two runs from the queue, merges them into run id and publishes
// it. Merge returns nil without producing anything when the queue is
// cancelled while it waits. A run taken before the cancel is removed unless
// Keep is set.
func (w *Worker) Merge(ctx context.Context, id string) error {
	first, ok := w.Queue.Take()
	if !ok {
		return nil
	}

	second, ok := w.Queue.Take()
	if !ok {
		w.release(first)
		return nil
	}

	if err := ctx.Err(); err != nil {
		w.release(first, second)
		return err
	}

	count, err := w.merge(id, first, second)
	if err != nil {
		return &StageError{Stage: MergeTask, Run: id, Err: err}
	}

	if !w.Keep {
		for _, run := range []string{first, second} {
			if err := w.Store.Remove(run); err != nil {
				return &StageError{Stage: MergeTask, Run: id, Err: err}
			}
		}
	}

	w.logger().At(MergeTask).Logf("run=%s left=%s right=%s count=%d", id, first, second, count)

	return w.publish(MergeTask, id)
}

// release drops runs this worker took but will not merge.
func (w *Worker) release(runs ...string) {
	if w.Keep {
		return
	}
	for _, run := range runs {
		w.Store.Remove(run)
	}
}

func (w *Worker) write(id string, values []int32) error {
	out, err := w.Store.Create(id, int64(len(values)))
	if err != nil {
		return err
	}

	if err := out.Append(values); err != nil {
		out.Close()
		w.Store.Remove(id)
		return err
	}

	return out.Close()
}

func (w *Worker) merge(id, first, second string) (int64, error) {
	left, err := w.Store.Open(first)
	if err != nil {
		return 0, err
	}
	defer left.Close()

	right, err := w.Store.Open(second)
	if err != nil {
		return 0, err
	}
	defer right.Close()

	count := left.Len() + right.Len()

	out, err := w.Store.Create(id, count)
	if err != nil {
		return 0, err
	}

	if err := mergeRuns(out, left, right); err != nil {
		out.Close()
		w.Store.Remove(id)
		return 0, err
	}

	if err := out.Close(); err != nil {
		return 0, err
	}

	return count, nil
}

// mergeRuns writes the ascending union of left and right to out.
func mergeRuns(out store.RunWriter, left, right store.RunReader) error {
	buf := make([]int32, 0, mergeBufferSize)

	emit := func(v int32) error {
		buf = append(buf, v)
		if len(buf) < cap(buf) {
			return nil
		}
		err := out.Append(buf)
		buf = buf[:0]
		return err
	}

	l, lerr := left.Next()
	r, rerr := right.Next()

	for lerr == nil && rerr == nil {
		var err error
		if l <= r {
			err = emit(l)
			l, lerr = left.Next()
		} else {
			err = emit(r)
			r, rerr = right.Next()
		}
		if err != nil {
			return err
		}
	}

	for lerr == nil {
		if err := emit(l); err != nil {
			return err
		}
		l, lerr = left.Next()
	}

	for rerr == nil {
		if err := emit(r); err != nil {
			return err
		}
		r, rerr = right.Next()
	}

	if lerr != io.EOF {
		return lerr
	}
	if rerr != io.EOF {
		return rerr
	}

	if len(buf) > 0 {
		return out.Append(buf)
	}

	return nil
}

// publish hands run id to the next stage. When the queue no longer accepts
// runs the run is removed and ErrQueueClosed is returned.
func (w *Worker) publish(taskType, id string) error {
	if !w.Queue.Put(id) {
		w.Store.Remove(id)
		return ErrQueueClosed
	}

	if w.Published != nil {
		w.Published(taskType, id)
	}

	return nil
}

func (w *Worker) logger() *logger.Logger {
	if w.log == nil {
		return defaultLogger
	}
	return w.log
}
