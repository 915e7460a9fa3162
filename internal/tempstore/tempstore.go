// Package tempstore keeps in-flight form outlines at rest between the
// outline and detail stages, so a crashed run can resume detail
// fetching without re-listing every form.
package tempstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FormOutline is the set of request ids collected for one form, plus
// whether the listing completed cleanly and when it was taken.
type FormOutline struct {
	Success    bool     `json:"success"`
	IDs        []string `json:"ids"`
	LastAccess string   `json:"last_access"` // YYYY/MM/DD HH:MM:SS
}

// IsEmpty reports whether no request ids remain for the form.
func (o *FormOutline) IsEmpty() bool {
	return len(o.IDs) == 0
}

// Remove drops one request id, typically after its detail completed.
func (o *FormOutline) Remove(requestID string) {
	out := o.IDs[:0]
	for _, id := range o.IDs {
		if id != requestID {
			out = append(out, id)
		}
	}
	o.IDs = out
}

// Store persists the form_id → outline map.
type Store interface {
	Save(outlines map[int]*FormOutline) error
	Load() (map[int]*FormOutline, error)
	// Cleanup deletes the stored map only when every outline is empty;
	// otherwise it is retained so the next run can resume.
	Cleanup() error
}

// FileStore writes the map as one JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the whole map, replacing any previous content.
func (s *FileStore) Save(outlines map[int]*FormOutline) error {
	data, err := json.MarshalIndent(outlines, "", "  ")
	if err != nil {
		return fmt.Errorf("encode form outlines: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write form outlines: %w", err)
	}
	return nil
}

// Load reads the stored map. A missing file is an empty map.
func (s *FileStore) Load() (map[int]*FormOutline, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]*FormOutline{}, nil
		}
		return nil, fmt.Errorf("read form outlines: %w", err)
	}
	outlines := map[int]*FormOutline{}
	if err := json.Unmarshal(data, &outlines); err != nil {
		return nil, fmt.Errorf("decode form outlines: %w", err)
	}
	return outlines, nil
}

// Cleanup removes the file only when every stored outline is empty.
func (s *FileStore) Cleanup() error {
	outlines, err := s.Load()
	if err != nil {
		return err
	}
	for _, o := range outlines {
		if !o.IsEmpty() {
			return nil
		}
	}
	err = os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemoryStore keeps the map in RAM and only flushes to the underlying
// store on Save, for callers that batch many small mutations.
type MemoryStore struct {
	backing  Store
	outlines map[int]*FormOutline
}

// NewMemoryStore wraps a backing store, priming the in-memory map from
// it.
func NewMemoryStore(backing Store) (*MemoryStore, error) {
	outlines, err := backing.Load()
	if err != nil {
		return nil, err
	}
	return &MemoryStore{backing: backing, outlines: outlines}, nil
}

// Outlines returns the live in-memory map.
func (s *MemoryStore) Outlines() map[int]*FormOutline {
	return s.outlines
}

// Put replaces one form's outline in memory.
func (s *MemoryStore) Put(formID int, outline *FormOutline) {
	s.outlines[formID] = outline
}

// Delete removes one form's outline in memory.
func (s *MemoryStore) Delete(formID int) {
	delete(s.outlines, formID)
}

// Save flushes the in-memory map to the backing store.
func (s *MemoryStore) Save(outlines map[int]*FormOutline) error {
	if outlines != nil {
		s.outlines = outlines
	}
	return s.backing.Save(s.outlines)
}

// Flush writes the current in-memory map.
func (s *MemoryStore) Flush() error {
	return s.backing.Save(s.outlines)
}

// Load returns the in-memory map without touching the backing store.
func (s *MemoryStore) Load() (map[int]*FormOutline, error) {
	return s.outlines, nil
}

// Cleanup delegates to the backing store and drops emptied entries
// from memory.
func (s *MemoryStore) Cleanup() error {
	if err := s.backing.Save(s.outlines); err != nil {
		return err
	}
	return s.backing.Cleanup()
}
