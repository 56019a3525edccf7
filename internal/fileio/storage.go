package fileio

import (
	"fmt"
	"io"
	"os"

	"github.com/simonhull/atomtree/internal/types"
)

// Storage is the byte store behind a File.
type Storage interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Size() (int64, error)
	Sync() error
	Close() error
}

// opener produces a Storage for a non-closed mode. It is called again on
// every mode change.
type opener func(mode Mode) (Storage, error)

type osStorage struct {
	f *os.File
}

func (s osStorage) ReadAt(p []byte, off int64) (int, error)  { return s.f.ReadAt(p, off) }
func (s osStorage) WriteAt(p []byte, off int64) (int, error) { return s.f.WriteAt(p, off) }
func (s osStorage) Truncate(size int64) error                { return s.f.Truncate(size) }
func (s osStorage) Sync() error                              { return s.f.Sync() }
func (s osStorage) Close() error                             { return s.f.Close() }

func (s osStorage) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func osOpener(path string) opener {
	return func(mode Mode) (Storage, error) {
		flag := os.O_RDONLY
		if mode == types.ReadWrite {
			flag = os.O_RDWR
		}
		f, err := os.OpenFile(path, flag, 0)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return osStorage{f: f}, nil
	}
}

// memStorage keeps its contents across Close.
type memStorage struct {
	data []byte
}

func (m *memStorage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStorage) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if end := off + int64(len(p)); end > int64(len(m.data)) {
		m.grow(end)
	}
	return copy(m.data[off:], p), nil
}

func (m *memStorage) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("negative size %d", size)
	}
	if size > int64(len(m.data)) {
		m.grow(size)
		return nil
	}
	m.data = m.data[:size]
	return nil
}

func (m *memStorage) grow(size int64) {
	if size <= int64(cap(m.data)) {
		old := len(m.data)
		m.data = m.data[:size]
		clear(m.data[old:])
		return
	}
	grown := make([]byte, size, size+size/4)
	copy(grown, m.data)
	m.data = grown
}

func (m *memStorage) Size() (int64, error) { return int64(len(m.data)), nil }
func (m *memStorage) Sync() error          { return nil }
func (m *memStorage) Close() error         { return nil }
