// Package store holds the collaborators the sort pipeline reads from and
// writes to: the fixed-width integer input and the run stores that persist
// sorted runs between stages.
package store

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ElementSize is the width in bytes of one input integer.
const ElementSize = 4

var (
	ErrNotFound      = errors.New("run not found")
	ErrCountMismatch = errors.New("run length does not match its header")
)

// Input is a random-access source of fixed-width integers.
type Input interface {
	// Len returns the number of integers in the input.
	Len() int64
	// ReadAt returns at most count integers starting at element offset.
	ReadAt(offset int64, count int) ([]int32, error)
}

// RunWriter appends values to a run that is being created. The number of
// values is fixed when the run is created and checked on Close.
type RunWriter interface {
	Append(values []int32) error
	Close() error
}

// RunReader reads a run back in order. Next returns io.EOF after the last
// value.
type RunReader interface {
	Len() int64
	Next() (int32, error)
	Close() error
}

// RunStore persists runs under unique identifiers.
type RunStore interface {
	Create(id string, count int64) (RunWriter, error)
	Open(id string) (RunReader, error)
	Remove(id string) error
	// Location returns the string a user can pass to OpenLocation to read
	// the run after the job is over.
	Location(id string) string
	Close() error
}

// OpenLocation opens a run from a location string returned by a store. An
// existing file is read as a run file. Otherwise a location of the form
// "<db>#<id>" is read from the bolt database at <db> when that file exists.
func OpenLocation(location string) (RunReader, error) {
	if isFile(location) {
		return openRunFile(location)
	}

	if i := strings.LastIndex(location, "#"); i > 0 && isFile(location[:i]) {
		return openBoltLocation(location[:i], location[i+1:])
	}

	return openRunFile(location)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ReadAll drains r into a slice.
func ReadAll(r RunReader) ([]int32, error) {
	values := make([]int32, 0, r.Len())

	for {
		v, err := r.Next()
		if err == io.EOF {
			return values, nil
		}
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
}

type sliceReader struct {
	values []int32
	pos    int
}

func (r *sliceReader) Len() int64 {
	return int64(len(r.values))
}

func (r *sliceReader) Next() (int32, error) {
	if r.pos >= len(r.values) {
		return 0, io.EOF
	}

	v := r.values[r.pos]
	r.pos++

	return v, nil
}

func (r *sliceReader) Close() error {
	return nil
}
