package syncloop

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// KeyResultsDisabled is the viewer-wide switch that suppresses automatic result display.
const KeyResultsDisabled = "results_disabled"

// VotedKey marks that this viewer already voted in a poll.
func VotedKey(pollID uuid.UUID) string { return "voted_" + pollID.String() }

// ResultsShownKey marks that a poll's results were already shown to this viewer.
func ResultsShownKey(pollID uuid.UUID) string { return "results_shown_" + pollID.String() }

// FlagStore holds a viewer's private flags. Other clients never see them.
type FlagStore interface {
	Get(key string) (bool, error)
	Set(key string) error
	Delete(key string) error
}

// MemoryFlags is a FlagStore that lives as long as the process.
type MemoryFlags struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewMemoryFlags creates an empty in-memory flag store.
func NewMemoryFlags() *MemoryFlags {
	return &MemoryFlags{flags: make(map[string]bool)}
}

func (m *MemoryFlags) Get(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[key], nil
}

func (m *MemoryFlags) Set(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[key] = true
	return nil
}

func (m *MemoryFlags) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, key)
	return nil
}

// flagsField is the YAML key the flags are kept under; other keys in the file are preserved.
const flagsField = "flags"

// FileFlags persists flags in a YAML file, so a viewer keeps its state across restarts.
type FileFlags struct {
	mu   sync.Mutex
	path string
}

// NewFileFlags creates a flag store backed by path. The file is created on first Set.
func NewFileFlags(path string) *FileFlags {
	return &FileFlags{path: path}
}

func (f *FileFlags) load() (map[string]interface{}, map[string]bool, error) {
	doc := map[string]interface{}{}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, map[string]bool{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read flags: %w", err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse flags %s: %w", f.path, err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	flags := map[string]bool{}
	if section, ok := doc[flagsField].(map[string]interface{}); ok {
		for k, v := range section {
			if b, ok := v.(bool); ok && b {
				flags[k] = true
			}
		}
	}
	return doc, flags, nil
}

func (f *FileFlags) save(doc map[string]interface{}, flags map[string]bool) error {
	doc[flagsField] = flags
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create flags dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write flags: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileFlags) Get(key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, flags, err := f.load()
	if err != nil {
		return false, err
	}
	return flags[key], nil
}

func (f *FileFlags) Set(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, flags, err := f.load()
	if err != nil {
		return err
	}
	if flags[key] {
		return nil
	}
	flags[key] = true
	return f.save(doc, flags)
}

func (f *FileFlags) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, flags, err := f.load()
	if err != nil {
		return err
	}
	if !flags[key] {
		return nil
	}
	delete(flags, key)
	return f.save(doc, flags)
}
