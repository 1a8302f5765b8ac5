package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/convox/logger"
	"github.com/convox/stdcli"
	"github.com/pkg/errors"
	"github.com/xtgo/uuid"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/rem1niscence/extsort"
	"github.com/rem1niscence/extsort/config"
	"github.com/rem1niscence/extsort/store"
)

var (
	flagConfig   = stdcli.StringFlag("config", "c", "config file")
	flagDir      = stdcli.StringFlag("dir", "d", "directory for runs")
	flagKeep     = stdcli.BoolFlag("keep", "", "keep intermediate runs")
	flagMonitor  = stdcli.DurationFlag("monitor", "m", "log running tasks at this interval")
	flagProgress = stdcli.BoolFlag("progress", "p", "show a progress bar on stderr")
	flagStore    = stdcli.StringFlag("store", "s", "run store: file or bolt")
	flagWorkers  = stdcli.IntFlag("workers", "w", "maximum concurrent tasks, 0 for unbounded")
)

func Sort(c *stdcli.Context) error {
	batch, err := strconv.Atoi(c.Arg(1))
	if err != nil || batch < 1 {
		return errors.Errorf("invalid batch size: %s", c.Arg(1))
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	in, err := store.OpenInput(c.Arg(0))
	if err != nil {
		return errors.Wrap(err, "input")
	}
	defer in.Close()

	rs, path, err := openStore(cfg)
	if err != nil {
		return errors.Wrap(err, "store")
	}

	opts := extsort.Options{
		Store:     rs,
		BatchSize: batch,
		Workers:   cfg.Workers,
		Keep:      cfg.Keep,
		Logger:    logger.NewWriter("ns=extsort", c.Writer().Stderr),
	}

	if d, ok := c.Value("monitor").(time.Duration); ok {
		opts.MonitorInterval = d
	}

	if c.Bool("progress") {
		chunks, err := extsort.Partition(in.Len(), batch)
		if err != nil {
			rs.Close()
			return err
		}

		if total := 2*len(chunks) - 1; total > 0 {
			bar := pb.New(total)
			bar.Output = c.Writer().Stderr
			bar.Prefix("runs ")
			bar.ShowTimeLeft = false
			bar.Start()
			defer bar.Finish()

			opts.Published = func(string, string) { bar.Increment() }
		}
	}

	coordinator, err := extsort.NewCoordinator(opts)
	if err != nil {
		rs.Close()
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := coordinator.Sort(ctx, in)

	if cerr := rs.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "store")
	}

	if err != nil {
		if !cfg.Keep {
			os.RemoveAll(path)
		}
		return err
	}

	c.Writef("%s\n", res.Location)

	return nil
}

func loadConfig(c *stdcli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, errors.Wrap(err, "config")
	}

	if v := c.String("dir"); v != "" {
		cfg.WorkDir = v
	}

	if v := c.String("store"); v != "" {
		cfg.Store = v
	}

	if v, ok := c.Value("workers").(int); ok {
		cfg.Workers = v
	}

	if c.Bool("keep") {
		cfg.Keep = true
	}

	return cfg, errors.Wrap(cfg.Validate(), "config")
}

// openStore creates a store private to one job so that concurrent jobs
// sharing a work directory never see each other's runs. The returned path is
// what to remove to discard the job.
func openStore(cfg config.Config) (store.RunStore, string, error) {
	job := "extsort-" + uuid.NewRandom().String()

	switch cfg.Store {
	case config.StoreBolt:
		if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
			return nil, "", err
		}
		path := filepath.Join(cfg.WorkDir, job+".db")
		s, err := store.NewBoltStore(path)
		return s, path, err
	default:
		dir := filepath.Join(cfg.WorkDir, job)
		s, err := store.NewFileStore(dir, cfg.BlockSize)
		return s, dir, err
	}
}
