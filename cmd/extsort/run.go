package main

import (
	"bufio"
	"encoding/binary"
	"io"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/convox/stdcli"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/rem1niscence/extsort/store"
)

func Cat(c *stdcli.Context) error {
	r, err := store.OpenLocation(c.Arg(0))
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = store.WriteText(c.Writer().Stdout, r)

	return err
}

func Verify(c *stdcli.Context) error {
	r, err := store.OpenLocation(c.Arg(0))
	if err != nil {
		return err
	}
	defer r.Close()

	var prev int32
	var n int64

	for {
		v, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if n > 0 && v < prev {
			return errors.Errorf("not sorted: value %d at index %d follows %d", v, n, prev)
		}

		prev = v
		n++
	}

	c.Writef("sorted: %d values\n", n)

	return nil
}

func Generate(c *stdcli.Context) error {
	count, err := strconv.ParseInt(c.Arg(1), 10, 64)
	if err != nil || count < 0 {
		return errors.Errorf("invalid count: %s", c.Arg(1))
	}

	seed := time.Now().UnixNano()
	if v, ok := c.Value("seed").(int); ok {
		seed = int64(v)
	}

	rng := rand.New(rand.NewSource(seed))

	f, err := os.Create(c.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	var buf [store.ElementSize]byte
	for i := int64(0); i < count; i++ {
		binary.LittleEndian.PutUint32(buf[:], rng.Uint32())
		if _, err := w.Write(buf[:]); err != nil {
			return errors.Wrapf(err, "write %s", c.Arg(0))
		}
	}

	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "write %s", c.Arg(0))
	}

	if err := f.Close(); err != nil {
		return err
	}

	c.Writef("%s %s\n", c.Arg(0), humanize.Bytes(uint64(count*store.ElementSize)))

	return nil
}
