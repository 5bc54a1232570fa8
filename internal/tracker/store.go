package tracker

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFileName is the tracking file created at the project root.
const DefaultFileName = ".devctl-processes.json"

// Record is the persisted form of a tracked process.
type Record struct {
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	Ports     []int     `json:"ports"`
	StartTime time.Time `json:"startTime"`
	Service   string    `json:"service,omitempty"`
	LogFile   string    `json:"logFile,omitempty"`
}

// File is the document stored by a Store.
type File struct {
	Processes   []Record  `json:"processes"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Store persists the whole File at once. Implementations do not lock;
// concurrent writers race and the last one wins.
type Store interface {
	Load() (File, error)
	Save(File) error
	Delete() error
}

// FileStore keeps the document as indented JSON at Path.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

// Load returns an empty File when the file is missing or does not parse
// into a valid document. Other read errors are returned.
func (s *FileStore) Load() (File, error) {
	b, err := os.ReadFile(filepath.Clean(s.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{}, nil
		}
		return File{}, err
	}
	f, ok := decode(b)
	if !ok {
		return File{}, nil
	}
	return f, nil
}

func (s *FileStore) Save(f File) error {
	if f.Processes == nil {
		f.Processes = []Record{}
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(s.Path, append(b, '\n'), 0o600)
}

func (s *FileStore) Delete() error {
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// decode parses and validates a tracking document. Any shape mismatch
// rejects the whole document.
func decode(b []byte) (File, bool) {
	var raw struct {
		Processes   *[]Record `json:"processes"`
		LastUpdated time.Time `json:"lastUpdated"`
	}
	if err := json.Unmarshal(b, &raw); err != nil || raw.Processes == nil {
		return File{}, false
	}
	for _, r := range *raw.Processes {
		if !valid(r) {
			return File{}, false
		}
	}
	return File{Processes: *raw.Processes, LastUpdated: raw.LastUpdated}, true
}

func valid(r Record) bool {
	if r.PID <= 0 {
		return false
	}
	for _, p := range r.Ports {
		if p <= 0 || p > 65535 {
			return false
		}
	}
	return true
}

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu     sync.Mutex
	file   *File
	SaveFn func(File) error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return File{}, nil
	}
	cp := *m.file
	cp.Processes = append([]Record(nil), m.file.Processes...)
	return cp, nil
}

func (m *MemoryStore) Save(f File) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(f); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := f
	cp.Processes = append([]Record(nil), f.Processes...)
	m.file = &cp
	return nil
}

func (m *MemoryStore) Delete() error {
	m.mu.Lock()
	m.file = nil
	m.mu.Unlock()
	return nil
}

// Exists reports whether a document is currently stored.
func (m *MemoryStore) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file != nil
}
