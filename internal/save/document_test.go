package save

import (
	"errors"
	"testing"
	"time"
)

func TestDocument_EncodeDecodeRoundTrip(t *testing.T) {
	doc := Document{
		Version:  DocVersion,
		SavedAt:  time.Date(2026, 3, 14, 21, 4, 5, 0, time.UTC).Format(TimeLayout),
		Location: "radio_tower",
		PlayTime: 4213.5,
		Entries: []Entry{
			{SaveID: "player", StateJSON: `{"x":5,"y":0,"z":3,"yaw":90}`, TypeTag: "player_state"},
			{SaveID: "scripted_events", StateJSON: `{"triggered":["intro_event"]}`, TypeTag: "scripted_event_ledger"},
		},
	}
	b, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeDocument(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SavedAt != doc.SavedAt || got.Location != doc.Location || got.PlayTime != doc.PlayTime {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if len(got.Entries) != 2 || got.Entries[0] != doc.Entries[0] || got.Entries[1] != doc.Entries[1] {
		t.Fatalf("entries mismatch: %+v", got.Entries)
	}
}

func TestDocument_DecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeDocument([]byte("{ not json")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDocument_DecodeRejectsWrongShape(t *testing.T) {
	cases := []string{
		`{}`,
		`{"version":1,"saved_at":"x","location":"loc","play_time_seconds":-1,"entries":[]}`,
		`{"version":1,"saved_at":"x","location":"loc","play_time_seconds":0,"entries":[{"save_id":"","state_json":"{}","type_tag":"t"}]}`,
		`{"version":"1","saved_at":"x","location":"loc","play_time_seconds":0,"entries":[]}`,
		`[1,2,3]`,
	}
	for _, c := range cases {
		if _, err := DecodeDocument([]byte(c)); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt for %s, got %v", c, err)
		}
	}
}

func TestDocument_Meta(t *testing.T) {
	doc := Document{SavedAt: "a", Location: "b", PlayTime: 3}
	m := doc.Meta()
	if m.SavedAt != "a" || m.Location != "b" || m.PlayTime != 3 {
		t.Fatalf("meta mismatch: %+v", m)
	}
}
