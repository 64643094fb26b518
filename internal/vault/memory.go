package vault

import (
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Store used by tests. Iteration order from
// ListFiles is sorted, so it is stable across calls.
type Memory struct {
	mu      sync.Mutex
	files   map[string]string
	folders map[string]bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		files:   map[string]string{},
		folders: map[string]bool{},
	}
}

func (m *Memory) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		return true, nil
	}
	return m.folders[path], nil
}

func (m *Memory) Read(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return content, nil
}

func (m *Memory) Create(path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
	return nil
}

func (m *Memory) Modify(path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	m.files[path] = content
	return nil
}

func (m *Memory) CreateFolder(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[path] = true
	return nil
}

func (m *Memory) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[oldPath]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldPath)
	}
	delete(m.files, oldPath)
	m.files[newPath] = content
	return nil
}

func (m *Memory) ListFiles() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *Memory) Frontmatter(path string) (map[string]any, error) {
	n, err := ReadNote(m, path)
	if err != nil {
		return nil, err
	}
	return n.Frontmatter, nil
}
