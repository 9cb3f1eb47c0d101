// Package slotstore persists save documents on local disk, one file per
// integer slot under the save directory.
package slotstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"fracturedechoes.app/internal/save"
)

type Store struct {
	dir      string
	ext      string
	maxSlots int
}

// New creates a store rooted at dir. ext is the save file extension
// (configuration, not protocol); maxSlots bounds valid slot indices.
func New(dir, ext string, maxSlots int) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("slotstore: empty dir")
	}
	if ext == "" {
		ext = ".save.json"
	}
	if maxSlots <= 0 {
		maxSlots = 10
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, ext: ext, maxSlots: maxSlots}, nil
}

func (s *Store) MaxSlots() int { return s.maxSlots }

func (s *Store) Path(slot int) string {
	return filepath.Join(s.dir, fmt.Sprintf("slot_%02d%s", slot, s.ext))
}

func (s *Store) checkSlot(slot int) error {
	if slot < 0 || slot >= s.maxSlots {
		return fmt.Errorf("slotstore: slot %d out of range [0,%d)", slot, s.maxSlots)
	}
	return nil
}

func (s *Store) Exists(slot int) bool {
	if s.checkSlot(slot) != nil {
		return false
	}
	_, err := os.Stat(s.Path(slot))
	return err == nil
}

// Write serializes and stores the document, overwriting any prior content at
// that slot.
func (s *Store) Write(slot int, doc save.Document) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	b, err := save.EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode slot %d: %w", slot, err)
	}
	f, err := os.OpenFile(s.Path(slot), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write slot %d: %w", slot, err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("write slot %d: %w", slot, err)
	}
	return f.Close()
}

// Read returns the full document at slot. ErrNotFound when the slot is
// empty; ErrCorrupt when the stored content does not parse.
func (s *Store) Read(slot int) (save.Document, error) {
	if err := s.checkSlot(slot); err != nil {
		return save.Document{}, err
	}
	b, err := os.ReadFile(s.Path(slot))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return save.Document{}, fmt.Errorf("slot %d: %w", slot, save.ErrNotFound)
		}
		return save.Document{}, fmt.Errorf("read slot %d: %w", slot, err)
	}
	doc, err := save.DecodeDocument(b)
	if err != nil {
		return save.Document{}, fmt.Errorf("slot %d: %w", slot, err)
	}
	return doc, nil
}

// ReadMetadata is the lighter read used by listing UI. An empty slot returns
// ok=false, not an error.
func (s *Store) ReadMetadata(slot int) (save.Metadata, bool, error) {
	doc, err := s.Read(slot)
	if err != nil {
		if errors.Is(err, save.ErrNotFound) {
			return save.Metadata{}, false, nil
		}
		return save.Metadata{}, false, err
	}
	return doc.Meta(), true, nil
}

// Delete removes the slot's document. No-op when already empty.
func (s *Store) Delete(slot int) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	err := os.Remove(s.Path(slot))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	return nil
}
