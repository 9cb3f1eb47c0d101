package slotstore

import (
	"errors"
	"os"
	"testing"

	"fracturedechoes.app/internal/save"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), "", 5)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func testDoc(location string) save.Document {
	return save.Document{
		Version:  save.DocVersion,
		SavedAt:  "2026-03-14T21:04:05Z",
		Location: location,
		PlayTime: 77.5,
		Entries: []save.Entry{
			{SaveID: "player", StateJSON: `{"x":5,"y":0,"z":3,"yaw":90}`, TypeTag: "player_state"},
		},
	}
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.Write(1, testDoc("attic")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !s.Exists(1) {
		t.Fatalf("expected slot 1 present")
	}
	doc, err := s.Read(1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc.Location != "attic" || len(doc.Entries) != 1 || doc.Entries[0].SaveID != "player" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestStore_OverwriteReplacesDocument(t *testing.T) {
	s := newTestStore(t)
	if err := s.Write(2, testDoc("first")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(2, testDoc("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	doc, err := s.Read(2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc.Location != "second" {
		t.Fatalf("location=%q want second", doc.Location)
	}
}

func TestStore_SlotIsolation(t *testing.T) {
	s := newTestStore(t)
	if err := s.Write(1, testDoc("one")); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := s.Write(3, testDoc("three")); err != nil {
		t.Fatalf("write 3: %v", err)
	}
	if err := s.Delete(1); err != nil {
		t.Fatalf("delete 1: %v", err)
	}
	doc, err := s.Read(3)
	if err != nil {
		t.Fatalf("read 3: %v", err)
	}
	if doc.Location != "three" {
		t.Fatalf("slot 3 affected by slot 1 ops: %+v", doc)
	}
}

func TestStore_EmptySlotContract(t *testing.T) {
	s := newTestStore(t)
	if s.Exists(4) {
		t.Fatalf("slot never written must not exist")
	}
	if _, ok, err := s.ReadMetadata(4); err != nil || ok {
		t.Fatalf("metadata of empty slot: ok=%v err=%v", ok, err)
	}
	if _, err := s.Read(4); !errors.Is(err, save.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Write(4, testDoc("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Delete(4); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.Exists(4) {
		t.Fatalf("deleted slot must not exist")
	}
	if _, ok, _ := s.ReadMetadata(4); ok {
		t.Fatalf("deleted slot must have empty metadata")
	}
}

func TestStore_DeleteEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete(0); err != nil {
		t.Fatalf("delete empty slot: %v", err)
	}
}

func TestStore_ReadCorruptFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(1), []byte("not a save document"), 0o644); err != nil {
		t.Fatalf("plant corrupt file: %v", err)
	}
	if _, err := s.Read(1); !errors.Is(err, save.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	// Corrupt content is a real error for metadata too, not an empty slot.
	if _, _, err := s.ReadMetadata(1); err == nil {
		t.Fatalf("expected metadata error for corrupt slot")
	}
}

func TestStore_ReadMetadataSkipsEntries(t *testing.T) {
	s := newTestStore(t)
	if err := s.Write(0, testDoc("hall")); err != nil {
		t.Fatalf("write: %v", err)
	}
	meta, ok, err := s.ReadMetadata(0)
	if err != nil || !ok {
		t.Fatalf("metadata: ok=%v err=%v", ok, err)
	}
	if meta.Location != "hall" || meta.PlayTime != 77.5 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestStore_SlotRange(t *testing.T) {
	s := newTestStore(t)
	if err := s.Write(5, testDoc("x")); err == nil {
		t.Fatalf("expected out-of-range write rejected")
	}
	if err := s.Write(-1, testDoc("x")); err == nil {
		t.Fatalf("expected negative slot rejected")
	}
	if s.Exists(99) {
		t.Fatalf("out-of-range slot must not exist")
	}
}
