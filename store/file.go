package store

import (
	"bufio"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultBlockSize is the number of values encoded per gob block in a run
// file.
const DefaultBlockSize = 4096

const runFileSuffix = ".run"

// runHeader leads every run file so readers know the run length up front.
type runHeader struct {
	Count int64
}

// FileStore keeps each run in its own file under a directory. A run file is a
// gob stream: one runHeader followed by blocks of at most blockSize values.
type FileStore struct {
	dir       string
	blockSize int
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, blockSize int) (*FileStore, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create run dir %s", dir)
	}

	return &FileStore{dir: dir, blockSize: blockSize}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+runFileSuffix)
}

// Create opens a new run file and takes an exclusive lock on it until the
// writer is closed.
func (s *FileStore) Create(id string, count int64) (RunWriter, error) {
	path := s.path(id)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "create run %s", id)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "lock run %s", id)
	}

	w := &fileWriter{
		file:  f,
		buf:   bufio.NewWriter(f),
		count: count,
		size:  s.blockSize,
	}
	w.enc = gob.NewEncoder(w.buf)

	if err := w.enc.Encode(runHeader{Count: count}); err != nil {
		w.abort()
		return nil, errors.Wrapf(err, "encode header of run %s", id)
	}

	return w, nil
}

// Open opens a run file for reading under a shared lock.
func (s *FileStore) Open(id string) (RunReader, error) {
	return openRunFile(s.path(id))
}

// Remove deletes a run file. Removing a missing run is not an error.
func (s *FileStore) Remove(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove run %s", id)
	}
	return nil
}

func (s *FileStore) Location(id string) string {
	return s.path(id)
}

func (s *FileStore) Close() error {
	return nil
}

type fileWriter struct {
	file    *os.File
	buf     *bufio.Writer
	enc     *gob.Encoder
	block   []int32
	size    int
	count   int64
	written int64
	closed  bool
}

func (w *fileWriter) Append(values []int32) error {
	if w.written+int64(len(values)) > w.count {
		return errors.Wrapf(ErrCountMismatch, "%s: more than %d values", w.file.Name(), w.count)
	}

	for len(values) > 0 {
		n := w.size - len(w.block)
		if n > len(values) {
			n = len(values)
		}

		w.block = append(w.block, values[:n]...)
		values = values[n:]
		w.written += int64(n)

		if len(w.block) == w.size {
			if err := w.flushBlock(); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *fileWriter) flushBlock() error {
	if len(w.block) == 0 {
		return nil
	}

	if err := w.enc.Encode(w.block); err != nil {
		return errors.Wrapf(err, "encode block of %s", w.file.Name())
	}

	w.block = w.block[:0]

	return nil
}

// Close flushes the last block and releases the lock. A run that was not
// given exactly the number of values it was created with is removed.
func (w *fileWriter) Close() error {
	if w.closed {
		return nil
	}

	if w.written != w.count {
		w.abort()
		return errors.Wrapf(ErrCountMismatch, "%s: wrote %d of %d values", w.file.Name(), w.written, w.count)
	}

	if err := w.flushBlock(); err != nil {
		w.abort()
		return err
	}

	if err := w.buf.Flush(); err != nil {
		w.abort()
		return errors.Wrapf(err, "flush %s", w.file.Name())
	}

	w.closed = true

	// Unlock the file when done
	unix.Flock(int(w.file.Fd()), unix.LOCK_UN)

	return errors.WithStack(w.file.Close())
}

func (w *fileWriter) abort() {
	w.closed = true
	unix.Flock(int(w.file.Fd()), unix.LOCK_UN)
	w.file.Close()
	os.Remove(w.file.Name())
}

type fileReader struct {
	file  *os.File
	dec   *gob.Decoder
	block []int32
	pos   int
	count int64
	read  int64
}

func openRunFile(path string) (RunReader, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "open file %s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open file %s", path)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "lock file %s", path)
	}

	r := &fileReader{
		file: f,
		dec:  gob.NewDecoder(bufio.NewReader(f)),
	}

	var header runHeader
	if err := r.dec.Decode(&header); err != nil {
		r.Close()
		return nil, errors.Wrapf(err, "decode header of %s", path)
	}
	r.count = header.Count

	return r, nil
}

func (r *fileReader) Len() int64 {
	return r.count
}

func (r *fileReader) Next() (int32, error) {
	if r.read >= r.count {
		return 0, io.EOF
	}

	if r.pos >= len(r.block) {
		var block []int32
		if err := r.dec.Decode(&block); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, errors.Wrapf(err, "decode block of %s", r.file.Name())
		}
		if len(block) == 0 {
			return 0, errors.Errorf("decode block of %s: empty block", r.file.Name())
		}
		r.block = block
		r.pos = 0
	}

	v := r.block[r.pos]
	r.pos++
	r.read++

	return v, nil
}

func (r *fileReader) Close() error {
	unix.Flock(int(r.file.Fd()), unix.LOCK_UN)
	return r.file.Close()
}
