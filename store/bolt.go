package store

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var runsBucket = []byte("runs")

// BoltStore keeps every run of a job as one value in a bolt database. Values
// are packed little-endian int32s, so the run length is the value length
// divided by ElementSize.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt store %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "create bucket in %s", path)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Create buffers the run in memory and writes it in a single transaction on
// Close.
func (s *BoltStore) Create(id string, count int64) (RunWriter, error) {
	return &boltWriter{store: s, id: id, count: count, values: make([]int32, 0, count)}, nil
}

func (s *BoltStore) Open(id string) (RunReader, error) {
	var values []int32

	err := s.db.View(func(tx *bolt.Tx) error {
		data, ok := getRun(tx.Bucket(runsBucket), id)
		if !ok {
			return errors.Wrapf(ErrNotFound, "run %s", id)
		}
		values = unpack(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &sliceReader{values: values}, nil
}

func (s *BoltStore) Remove(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) Location(id string) string {
	return s.path + "#" + id
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltWriter struct {
	store  *BoltStore
	id     string
	count  int64
	values []int32
	closed bool
}

func (w *boltWriter) Append(values []int32) error {
	if int64(len(w.values)+len(values)) > w.count {
		return errors.Wrapf(ErrCountMismatch, "run %s: more than %d values", w.id, w.count)
	}

	w.values = append(w.values, values...)

	return nil
}

func (w *boltWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if int64(len(w.values)) != w.count {
		return errors.Wrapf(ErrCountMismatch, "run %s: wrote %d of %d values", w.id, len(w.values), w.count)
	}

	data := pack(w.values)

	err := w.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).Put([]byte(w.id), data)
	})

	return errors.Wrapf(err, "put run %s", w.id)
}

func openBoltLocation(path, id string) (RunReader, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt store %s", path)
	}
	defer db.Close()

	s := &BoltStore{db: db, path: path}

	var values []int32

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)
		if b == nil {
			return errors.Wrapf(ErrNotFound, "run %s", id)
		}
		data, ok := getRun(b, id)
		if !ok {
			return errors.Wrapf(ErrNotFound, "run %s", s.Location(id))
		}
		values = unpack(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &sliceReader{values: values}, nil
}

// getRun looks a run up with a cursor because Get cannot tell a missing key
// from the empty run.
func getRun(b *bolt.Bucket, id string) ([]byte, bool) {
	k, v := b.Cursor().Seek([]byte(id))
	if k == nil || !bytes.Equal(k, []byte(id)) {
		return nil, false
	}
	return v, true
}

func pack(values []int32) []byte {
	data := make([]byte, len(values)*ElementSize)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*ElementSize:], uint32(v))
	}
	return data
}

// unpack copies out of data, which bolt only keeps valid for the life of
// the transaction.
func unpack(data []byte) []int32 {
	values := make([]int32, len(data)/ElementSize)
	for i := range values {
		values[i] = int32(binary.LittleEndian.Uint32(data[i*ElementSize:]))
	}
	return values
}
