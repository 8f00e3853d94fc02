package snapshot

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// Target is where a cache keeps its snapshot.
//
// Read returns an error matching fs.ErrNotExist when no snapshot has been
// written yet. Write replaces the previous snapshot in full.
type Target interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// File is a Target backed by a file on disk.
//
// Writes go to a temporary file in the same directory which is synced and
// then renamed over the destination, so a crash mid-write leaves either
// the old or the new snapshot, never a torn one.
type File struct {
	Path string
	Perm os.FileMode // 0 => 0o644
}

// NewFile returns a file Target for path.
func NewFile(path string) *File { return &File{Path: path} }

// Read returns the file contents.
func (f *File) Read() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Write atomically replaces the file with data, creating parent
// directories as needed.
func (f *File) Write(data []byte) error {
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	perm := f.Perm
	if perm == 0 {
		perm = 0o644
	}
	return renameio.WriteFile(f.Path, data, perm)
}

// Memory is an in-process Target. The zero value holds no snapshot.
// It is safe for concurrent use so a snapshot can be read from another
// goroutine while the owning cache keeps writing.
type Memory struct {
	mu   sync.Mutex
	data []byte
	set  bool
}

// Read returns a copy of the last written snapshot.
func (m *Memory) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return nil, fs.ErrNotExist
	}
	return append([]byte(nil), m.data...), nil
}

// Write stores a copy of data.
func (m *Memory) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data[:0], data...)
	m.set = true
	return nil
}

// Compile-time checks.
var (
	_ Target = (*File)(nil)
	_ Target = (*Memory)(nil)
)
