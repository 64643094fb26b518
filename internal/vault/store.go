// Package vault is the document-store collaborator: a key-value content
// store with a folder namespace. The rest of the system never depends on
// editor-specific behavior, only on this interface.
package vault

import "errors"

// ErrNotFound is returned when a path does not exist in the store.
var ErrNotFound = errors.New("vault: not found")

// Store is the minimal surface the sync engine needs from a document store.
// Paths are slash-separated and relative to the vault root. Writes are
// last-write-wins; the store provides no locking.
type Store interface {
	Exists(path string) (bool, error)
	Read(path string) (string, error)
	Create(path, content string) error
	Modify(path, content string) error
	CreateFolder(path string) error
	Rename(oldPath, newPath string) error
	ListFiles() ([]string, error)
	// Frontmatter parses the structured header of the note at path into a
	// typed map. A note without a frontmatter block yields an empty map.
	Frontmatter(path string) (map[string]any, error)
}
