package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// document is the on-disk shape described in §6.4: a single JSON
// object keyed by feature id and task id.
type document struct {
	Features map[string]Feature `json:"features"`
	Tasks    map[string]Task    `json:"tasks"`
}

func newEmptyDocument() document {
	return document{
		Features: make(map[string]Feature),
		Tasks:    make(map[string]Task),
	}
}

// load reads the document at path. A missing file yields an empty
// document (first run); a corrupt file also yields an empty document,
// matching the original's "reinitialize state to avoid further
// errors" fallback rather than failing startup.
func load(path string) document {
	data, err := os.ReadFile(path)
	if err != nil {
		return newEmptyDocument()
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return newEmptyDocument()
	}
	if doc.Features == nil {
		doc.Features = make(map[string]Feature)
	}
	if doc.Tasks == nil {
		doc.Tasks = make(map[string]Task)
	}
	return doc
}

// save writes doc to path atomically: a sibling temp file in the same
// directory, fsync'd, then renamed over the destination.
func save(path string, doc document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: marshal state: %w", err)
	}

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}
