package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSystem defines minimum operations required for storage.
// core.RealFS satisfies it.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
}

// DefaultMaxHistory bounds the transaction log.
const DefaultMaxHistory = 500

// Manager owns the transaction log file. Safe for concurrent use.
type Manager struct {
	FilePath string
	Current  *State
	FS       FileSystem

	// MaxHistory keeps only the newest entries on save; 0 keeps everything.
	MaxHistory int

	mu sync.RWMutex
}

// NewManager loads the log at path. A missing file starts an empty log, a
// corrupt one is an error.
func NewManager(path string, fsys FileSystem) (*Manager, error) {
	mgr := &Manager{
		FilePath:   path,
		Current:    NewState(),
		FS:         fsys,
		MaxHistory: DefaultMaxHistory,
	}

	if err := mgr.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return mgr, nil
}

// Load replaces Current with the file's content.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.FS.ReadFile(m.FilePath)
	if err != nil {
		return err
	}

	loaded := NewState()
	if err := json.Unmarshal(data, loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", m.FilePath, err)
	}
	m.Current = loaded
	return nil
}

// Save trims the history to MaxHistory and writes the log.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.Current.History); m.MaxHistory > 0 && n > m.MaxHistory {
		m.Current.History = append([]Transaction(nil), m.Current.History[n-m.MaxHistory:]...)
	}
	m.Current.LastRun = time.Now()

	data, err := json.MarshalIndent(m.Current, "", "  ")
	if err != nil {
		return err
	}

	if err := m.FS.MkdirAll(filepath.Dir(m.FilePath), 0755); err != nil {
		return err
	}

	return m.FS.WriteFile(m.FilePath, data, 0644)
}
