// Package mapped provides a read-only, randomly addressable view over a file's
// bytes backed by a memory mapping.
package mapped

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

var (
	// ErrClosed is returned by operations on a File that has been closed.
	ErrClosed = errors.New("mapped file is closed")

	// ErrOutOfRange indicates a requested region lies outside the file.
	ErrOutOfRange = errors.New("region out of range")
)

// File is an open file plus at most one active mapped view.
// A File is not safe for concurrent use.
type File struct {
	path   string
	f      *os.File
	size   int64
	region mmap.MMap
	view   []byte
}

// Open opens path read-only. The file's size is captured once at open time.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("failed to open %s: is a directory", path)
	}

	return &File{path: path, f: f, size: info.Size()}, nil
}

// Path returns the path the file was opened with.
func (m *File) Path() string {
	return m.path
}

// Size returns the file size in bytes.
func (m *File) Size() int64 {
	return m.size
}

// Read implements io.Reader at the current file position.
func (m *File) Read(p []byte) (int, error) {
	if m.f == nil {
		return 0, ErrClosed
	}
	return m.f.Read(p)
}

// ReadAt implements io.ReaderAt.
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if m.f == nil {
		return 0, ErrClosed
	}
	return m.f.ReadAt(p, off)
}

// Seek implements io.Seeker.
func (m *File) Seek(offset int64, whence int) (int64, error) {
	if m.f == nil {
		return 0, ErrClosed
	}
	return m.f.Seek(offset, whence)
}

// Map maps length bytes starting at offset and returns them. A length of zero
// maps everything from offset to the end of the file. The offset does not need
// to be aligned; alignment to the allocation granularity is handled here.
// Any previously mapped view is released first and must not be used after.
func (m *File) Map(offset int64, length int) ([]byte, error) {
	if m.f == nil {
		return nil, ErrClosed
	}
	if offset < 0 || offset > m.size || length < 0 {
		return nil, fmt.Errorf("%w: offset %d length %d in %d bytes", ErrOutOfRange, offset, length, m.size)
	}
	if length == 0 {
		length = int(m.size - offset)
	}
	if int64(length) > m.size-offset {
		return nil, fmt.Errorf("%w: offset %d length %d in %d bytes", ErrOutOfRange, offset, length, m.size)
	}

	if err := m.Unmap(); err != nil {
		return nil, err
	}

	// mmap refuses empty regions.
	if length == 0 {
		m.view = []byte{}
		return m.view, nil
	}

	aligned := offset - offset%allocationGranularity
	delta := int(offset - aligned)

	region, err := mmap.MapRegion(m.f, length+delta, mmap.RDONLY, 0, aligned)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s at %d: %w", m.path, offset, err)
	}

	m.region = region
	m.view = region[delta : delta+length]
	return m.view, nil
}

// View returns the currently mapped bytes, or nil when nothing is mapped.
func (m *File) View() []byte {
	return m.view
}

// Unmap releases the current view. It is a no-op when nothing is mapped.
func (m *File) Unmap() error {
	m.view = nil
	if m.region == nil {
		return nil
	}
	region := m.region
	m.region = nil
	if err := region.Unmap(); err != nil {
		return fmt.Errorf("failed to unmap %s: %w", m.path, err)
	}
	return nil
}

// Close releases the view and the file handle. Calling Close more than once
// is safe.
func (m *File) Close() error {
	if m.f == nil {
		return nil
	}
	unmapErr := m.Unmap()
	closeErr := m.f.Close()
	m.f = nil
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

var (
	_ io.ReadSeeker = (*File)(nil)
	_ io.ReaderAt   = (*File)(nil)
)
