package extsort

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	SortTask  = "sort"
	MergeTask = "merge"
)

// Chunk is a contiguous slice of the input, in elements.
type Chunk struct {
	Index  int
	Offset int64
	Count  int
}

// Partition splits an input of length elements into chunks of at most
// batchSize elements. Chunks that would start at or past the end of the input
// are dropped, so every returned chunk holds at least one element.
func Partition(length int64, batchSize int) ([]Chunk, error) {
	if batchSize < 1 {
		return nil, errors.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	if length < 0 {
		return nil, errors.Errorf("invalid input length %d", length)
	}

	batch := int64(batchSize)
	chunks := make([]Chunk, 0, length/batch+1)

	for i := int64(0); i < length/batch+1; i++ {
		offset := i * batch
		if offset >= length {
			break
		}

		count := batch
		if remaining := length - offset; remaining < count {
			count = remaining
		}

		chunks = append(chunks, Chunk{Index: int(i), Offset: offset, Count: int(count)})
	}

	return chunks, nil
}

// Task is a unit of work handed to a Worker. Run is the id of the run the
// task produces.
type Task struct {
	Type  string
	Chunk Chunk
	Run   string
}

func sortRunID(chunk Chunk) string {
	return fmt.Sprintf("sort-%d", chunk.Offset)
}

func mergeRunID(n int64) string {
	return fmt.Sprintf("merge-%d", n)
}

type activeTask struct {
	task    Task
	start   time.Time
	taskNum int
}

// Tasks tracks the tasks of a job that are currently running and how many of
// each type have completed.
type Tasks struct {
	mu        sync.Mutex
	active    []activeTask
	completed map[string]int
	failed    int
	num       int
}

// Start records task as active and returns its task number.
func (t *Tasks) Start(task Task) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	num := t.num
	t.num++
	t.active = append(t.active, activeTask{task: task, start: time.Now(), taskNum: num})

	return num
}

// Complete removes an active task. Successful tasks are counted by type.
func (t *Tasks) Complete(taskNum int, ok bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, active := range t.active {
		if active.taskNum == taskNum {
			t.active = append(t.active[:i], t.active[i+1:]...)
			if !ok {
				t.failed++
				return true
			}
			if t.completed == nil {
				t.completed = map[string]int{}
			}
			t.completed[active.task.Type]++
			return true
		}
	}
	return false
}

// Active returns the tasks that have started and not completed.
func (t *Tasks) Active() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	tasks := make([]Task, len(t.active))
	for i, active := range t.active {
		tasks[i] = active.task
	}
	return tasks
}

// Completed returns how many tasks of the given type finished successfully.
func (t *Tasks) Completed(taskType string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed[taskType]
}

// Failed returns how many tasks returned an error.
func (t *Tasks) Failed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Oldest returns how long the longest running active task has been running.
func (t *Tasks) Oldest() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	var oldest time.Duration
	for _, active := range t.active {
		if d := time.Since(active.start); d > oldest {
			oldest = d
		}
	}
	return oldest
}
