package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// FileInput reads raw little-endian int32 values from a file with no header.
type FileInput struct {
	file   *os.File
	length int64
}

// OpenInput opens path and checks that it holds a whole number of integers.
func OpenInput(path string) (*FileInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open input %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat input %s", path)
	}

	if info.Size()%ElementSize != 0 {
		f.Close()
		return nil, errors.Errorf("input %s: size %d is not a multiple of %d", path, info.Size(), ElementSize)
	}

	return &FileInput{file: f, length: info.Size() / ElementSize}, nil
}

// Len returns the number of integers in the file.
func (in *FileInput) Len() int64 {
	return in.length
}

// Size returns the input size in bytes.
func (in *FileInput) Size() int64 {
	return in.length * ElementSize
}

// ReadAt is safe for concurrent use; every call does its own positioned read.
func (in *FileInput) ReadAt(offset int64, count int) ([]int32, error) {
	if offset < 0 || count < 0 {
		return nil, errors.Errorf("invalid read at %d count %d", offset, count)
	}
	if offset >= in.length {
		return nil, nil
	}
	if remaining := in.length - offset; int64(count) > remaining {
		count = int(remaining)
	}

	buf := make([]byte, count*ElementSize)

	n, err := in.file.ReadAt(buf, offset*ElementSize)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return nil, errors.Wrapf(err, "read %s at element %d", in.file.Name(), offset)
	}

	values := make([]int32, count)
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, values); err != nil {
		return nil, errors.Wrapf(err, "decode %s at element %d", in.file.Name(), offset)
	}

	return values, nil
}

func (in *FileInput) Close() error {
	return in.file.Close()
}

// WriteInput writes values to path in the input format.
func WriteInput(path string, values []int32) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create input %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, values); err != nil {
		return errors.Wrapf(err, "write input %s", path)
	}

	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "flush input %s", path)
	}

	return f.Close()
}

// WriteText writes the run as whitespace-separated decimal integers followed
// by a newline and returns the number of values written.
func WriteText(w io.Writer, r RunReader) (int64, error) {
	bw := bufio.NewWriter(w)

	var n int64
	for {
		v, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}

		if n > 0 {
			bw.WriteByte(' ')
		}
		fmt.Fprintf(bw, "%d", v)
		n++
	}

	bw.WriteByte('\n')

	return n, errors.WithStack(bw.Flush())
}
