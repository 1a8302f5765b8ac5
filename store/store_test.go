package store

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRun(t *testing.T, s RunStore, id string, values []int32) {
	t.Helper()

	w, err := s.Create(id, int64(len(values)))
	require.NoError(t, err)
	require.NoError(t, w.Append(values))
	require.NoError(t, w.Close())
}

func readRun(t *testing.T, s RunStore, id string) []int32 {
	t.Helper()

	r, err := s.Open(id)
	require.NoError(t, err)
	defer r.Close()

	values, err := ReadAll(r)
	require.NoError(t, err)

	return values
}

func testStores(t *testing.T) map[string]RunStore {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "runs"), 3)
	require.NoError(t, err)

	bs, err := NewBoltStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	return map[string]RunStore{
		"file":   fs,
		"bolt":   bs,
		"memory": NewMemoryStore(),
	}
}

func TestRunStores(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			values := []int32{-5, 0, 1, 1, 2, 7, 8, 100, 2147483647, -2147483648}

			w, err := s.Create("sort-0", int64(len(values)))
			require.NoError(t, err)
			require.NoError(t, w.Append(values[:4]))
			require.NoError(t, w.Append(values[4:]))
			require.NoError(t, w.Close())

			r, err := s.Open("sort-0")
			require.NoError(t, err)
			require.Equal(t, int64(len(values)), r.Len())

			got, err := ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			require.Equal(t, values, got)

			writeRun(t, s, "empty", []int32{})
			require.Empty(t, readRun(t, s, "empty"))

			require.NoError(t, s.Remove("sort-0"))
			require.NoError(t, s.Remove("sort-0"))

			_, err = s.Open("sort-0")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRunStoresCountMismatch(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			w, err := s.Create("short", 3)
			require.NoError(t, err)
			require.NoError(t, w.Append([]int32{1, 2}))
			require.ErrorIs(t, w.Close(), ErrCountMismatch)

			_, err = s.Open("short")
			require.ErrorIs(t, err, ErrNotFound)

			w, err = s.Create("long", 1)
			require.NoError(t, err)
			require.ErrorIs(t, w.Append([]int32{1, 2}), ErrCountMismatch)
		})
	}
}

func TestFileStoreBlocks(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), 4)
	require.NoError(t, err)

	values := make([]int32, 4*5+1)
	for i := range values {
		values[i] = int32(i)
	}

	writeRun(t, s, "r", values)
	require.Equal(t, values, readRun(t, s, "r"))

	require.Equal(t, filepath.Join(s.Dir(), "r.run"), s.Location("r"))
}

func TestFileStoreTruncatedRun(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), 2)
	require.NoError(t, err)

	writeRun(t, s, "r", []int32{1, 2, 3, 4, 5, 6})

	path := s.Location("r")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-4))

	r, err := s.Open("r")
	require.NoError(t, err)
	defer r.Close()

	_, err = ReadAll(r)
	require.Error(t, err)
}

func TestOpenLocation(t *testing.T) {
	values := []int32{3, 1, 2}

	fs, err := NewFileStore(t.TempDir(), 0)
	require.NoError(t, err)
	writeRun(t, fs, "merge-1", values)

	r, err := OpenLocation(fs.Location("merge-1"))
	require.NoError(t, err)
	got, err := ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, values, got)

	bs, err := NewBoltStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	writeRun(t, bs, "merge-1", values)
	location := bs.Location("merge-1")
	require.Equal(t, bs.Path()+"#merge-1", location)
	require.NoError(t, bs.Close())

	r, err = OpenLocation(location)
	require.NoError(t, err)
	got, err = ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, values, got)

	_, err = OpenLocation(bs.Path() + "#missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = OpenLocation(filepath.Join(t.TempDir(), "missing.run"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenLocationHashInPath(t *testing.T) {
	dir := t.TempDir()

	fs, err := NewFileStore(filepath.Join(dir, "a#b"), 0)
	require.NoError(t, err)
	writeRun(t, fs, "sort-0", []int32{1, 2})

	r, err := OpenLocation(fs.Location("sort-0"))
	require.NoError(t, err)
	got, err := ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, []int32{1, 2}, got)

	_, err = OpenLocation(filepath.Join(dir, "x#y.run"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = os.Stat(filepath.Join(dir, "x"))
	require.True(t, os.IsNotExist(err))
}

func TestFileInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, WriteInput(path, []int32{5, -3, 4, 1, 2}))

	in, err := OpenInput(path)
	require.NoError(t, err)
	defer in.Close()

	require.Equal(t, int64(5), in.Len())
	require.Equal(t, int64(20), in.Size())

	values, err := in.ReadAt(0, 2)
	require.NoError(t, err)
	require.Equal(t, []int32{5, -3}, values)

	values, err = in.ReadAt(4, 2)
	require.NoError(t, err)
	require.Equal(t, []int32{2}, values)

	values, err = in.ReadAt(5, 2)
	require.NoError(t, err)
	require.Empty(t, values)

	_, err = in.ReadAt(-1, 2)
	require.Error(t, err)
}

func TestOpenInputRejectsPartialElement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, ioutil.WriteFile(path, []byte{1, 0, 0, 0, 2, 0}, 0644))

	_, err := OpenInput(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a multiple of 4")

	_, err = OpenInput(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}

func TestMemoryInput(t *testing.T) {
	in := MemoryInput{1, 2, 3}

	values, err := in.ReadAt(1, 5)
	require.NoError(t, err)
	require.Equal(t, []int32{2, 3}, values)

	values[0] = 42
	require.Equal(t, int32(2), in[1])

	values, err = in.ReadAt(3, 1)
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer

	n, err := WriteText(&buf, &sliceReader{values: []int32{-1, 0, 12}})
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.Equal(t, "-1 0 12\n", buf.String())

	buf.Reset()

	n, err = WriteText(&buf, &sliceReader{})
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, "\n", buf.String())
}
