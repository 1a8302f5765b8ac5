package extsort

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/convox/logger"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rem1niscence/extsort/store"
)

// EmptyRun is the id of the terminal run of an empty input.
const EmptyRun = "empty"

var defaultLogger = logger.NewWriter("ns=extsort", os.Stderr)

// Options configures a Coordinator.
type Options struct {
	Store store.RunStore

	// BatchSize is the maximum number of values sorted in memory by one sort
	// task.
	BatchSize int

	// Workers caps the number of tasks running at once. Zero or less runs
	// every task on its own goroutine.
	Workers int

	// Keep leaves intermediate runs in the store after they are merged.
	Keep bool

	// Published is called every time a sort or merge run is published.
	Published func(taskType, run string)

	// MonitorInterval, when set, logs the running tasks at that interval
	// until the job ends.
	MonitorInterval time.Duration

	Logger *logger.Logger
}

// Coordinator is the coordinator struct that splits the input into chunks,
// schedules the sort and merge tasks and collects the terminal run.
type Coordinator struct {
	opts Options
	log  *logger.Logger
}

// NewCoordinator validates opts and returns a coordinator. A coordinator can
// run several jobs, one after another or concurrently, as long as their run
// ids do not collide in the store.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("coordinator: store is required")
	}
	if opts.BatchSize < 1 {
		return nil, errors.Errorf("coordinator: batch size must be at least 1, got %d", opts.BatchSize)
	}

	log := opts.Logger
	if log == nil {
		log = defaultLogger
	}

	return &Coordinator{opts: opts, log: log}, nil
}

// Sort sorts in and returns the terminal run. N chunks are sorted by N sort
// tasks and reduced to one run by exactly N-1 merge tasks, all scheduled up
// front. Merge tasks pair whichever runs the queue hands them. The first task
// error cancels the queue so no task is left blocked, and is returned once
// every task has finished.
func (c *Coordinator) Sort(ctx context.Context, in store.Input) (*Result, error) {
	log := c.log.At("sort").Start()
	started := time.Now()

	length := in.Len()

	chunks, err := Partition(length, c.opts.BatchSize)
	if err != nil {
		return nil, log.Error(&StageError{Stage: stagePartition, Err: err})
	}

	if len(chunks) == 0 {
		return c.empty(log, started)
	}

	log.Logf("elements=%s size=%s chunks=%d merges=%d workers=%d", humanize.Comma(length), humanize.Bytes(uint64(length*store.ElementSize)), len(chunks), len(chunks)-1, c.opts.Workers)

	queue := NewQueue[string]()

	stop := context.AfterFunc(ctx, queue.Cancel)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if c.opts.Workers > 0 {
		g.SetLimit(c.opts.Workers)
	}

	tasks := &Tasks{}

	if c.opts.MonitorInterval > 0 {
		done := make(chan struct{})
		defer close(done)
		go c.monitor(log, tasks, queue, done)
	}

	w := &Worker{
		Input:     in,
		Store:     c.opts.Store,
		Queue:     queue,
		Keep:      c.opts.Keep,
		Published: c.opts.Published,
		log:       c.log,
	}

	spawn := func(task Task) {
		g.Go(func() error {
			num := tasks.Start(task)
			err := w.PerformTask(gctx, task)
			tasks.Complete(num, err == nil)
			if err != nil {
				queue.Cancel()
			}
			return err
		})
	}

	// Sort tasks are all submitted before any merge task so that merge tasks
	// waiting on the queue never hold every pool slot while a sort is queued.
	for _, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		spawn(Task{Type: SortTask, Chunk: chunk, Run: sortRunID(chunk)})
	}

	var merges atomic.Int64
	for i := 0; i < len(chunks)-1; i++ {
		if gctx.Err() != nil {
			break
		}
		spawn(Task{Type: MergeTask, Run: mergeRunID(merges.Add(1))})
	}

	if err := g.Wait(); err != nil {
		log.Logf("state=abort failed=%d sorts=%d merges=%d", tasks.Failed(), tasks.Completed(SortTask), tasks.Completed(MergeTask))
		return nil, log.Error(err)
	}

	// A cancelled job may have stopped scheduling merges before any task
	// noticed, leaving several runs behind.
	if err := ctx.Err(); err != nil {
		return nil, log.Error(&StageError{Stage: stageFinalize, Err: err})
	}

	// Every producer has finished, so exactly one run is left.
	queue.Close()

	id, ok := queue.Take()
	if !ok {
		err := ctx.Err()
		if err == nil {
			err = ErrCanceled
		}
		return nil, log.Error(&StageError{Stage: stageFinalize, Err: err})
	}

	res := &Result{
		Run:      id,
		Location: c.opts.Store.Location(id),
		Chunks:   len(chunks),
		Merges:   tasks.Completed(MergeTask),
		Elements: length,
		Elapsed:  time.Since(started),
	}

	log.Successf("run=%s sorts=%d merges=%d", res.Run, tasks.Completed(SortTask), res.Merges)

	return res, nil
}

// monitor logs how many tasks are running and how long the oldest of them
// has been waiting, which is where a stalled reduction shows up.
func (c *Coordinator) monitor(log *logger.Logger, tasks *Tasks, queue *Queue[string], done chan struct{}) {
	ticker := time.NewTicker(c.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			log.Logf("state=running active=%d queued=%d oldest=%s sorts=%d merges=%d", len(tasks.Active()), queue.Len(), tasks.Oldest().Round(time.Millisecond), tasks.Completed(SortTask), tasks.Completed(MergeTask))
		}
	}
}

// empty writes an empty terminal run so an empty input completes at once.
func (c *Coordinator) empty(log *logger.Logger, started time.Time) (*Result, error) {
	w, err := c.opts.Store.Create(EmptyRun, 0)
	if err != nil {
		return nil, log.Error(&StageError{Stage: stageFinalize, Run: EmptyRun, Err: err})
	}

	if err := w.Close(); err != nil {
		return nil, log.Error(&StageError{Stage: stageFinalize, Run: EmptyRun, Err: err})
	}

	if c.opts.Published != nil {
		c.opts.Published(SortTask, EmptyRun)
	}

	log.Successf("run=%s chunks=0", EmptyRun)

	return &Result{
		Run:      EmptyRun,
		Location: c.opts.Store.Location(EmptyRun),
		Elapsed:  time.Since(started),
	}, nil
}
