package save

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type playerState struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Yaw float64 `json:"yaw"`
}

type fakeEntity struct {
	id          string
	tag         string
	st          playerState
	failCapture bool
	failRestore bool
	restored    int
}

func (f *fakeEntity) SaveID() string  { return f.id }
func (f *fakeEntity) TypeTag() string { return f.tag }

func (f *fakeEntity) CaptureState() (any, error) {
	if f.failCapture {
		return nil, errors.New("capture exploded")
	}
	return f.st, nil
}

func (f *fakeEntity) RestoreState(v any) error {
	if f.failRestore {
		return errors.New("restore exploded")
	}
	st, ok := v.(playerState)
	if !ok {
		return fmt.Errorf("unexpected state type %T", v)
	}
	f.st = st
	f.restored++
	return nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	codec := NewCodec()
	if err := codec.Register("player_state", JSONDecoder[playerState]()); err != nil {
		t.Fatalf("register codec: %v", err)
	}
	return NewRegistry(codec, nil)
}

func captureInfo() CaptureInfo {
	return CaptureInfo{Now: time.Unix(1760000000, 0), Location: "basement", PlayTime: 120}
}

func TestRegistry_RoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	p := &fakeEntity{id: "player", tag: "player_state", st: playerState{X: 5, Z: 3, Yaw: 90}}
	comp := &fakeEntity{id: "companion", tag: "player_state", st: playerState{X: -2, Y: 1}}
	ents := []Saveable{p, comp}

	doc := reg.Capture(captureInfo(), ents)
	if len(doc.Entries) != 2 {
		t.Fatalf("entries=%d want 2", len(doc.Entries))
	}
	if doc.Location != "basement" || doc.PlayTime != 120 {
		t.Fatalf("envelope metadata mismatch: %+v", doc)
	}

	p.st = playerState{}
	comp.st = playerState{}
	reg.Distribute(doc, ents)

	if p.st != (playerState{X: 5, Z: 3, Yaw: 90}) {
		t.Fatalf("player state not restored: %+v", p.st)
	}
	if comp.st != (playerState{X: -2, Y: 1}) {
		t.Fatalf("companion state not restored: %+v", comp.st)
	}
}

func TestRegistry_CaptureSkipsFailingEntity(t *testing.T) {
	reg := newTestRegistry(t)
	ents := []Saveable{
		&fakeEntity{id: "a", tag: "player_state"},
		&fakeEntity{id: "bad", tag: "player_state", failCapture: true},
		&fakeEntity{id: "c", tag: "player_state"},
	}
	doc := reg.Capture(captureInfo(), ents)
	if len(doc.Entries) != 2 {
		t.Fatalf("entries=%d want 2", len(doc.Entries))
	}
	for _, e := range doc.Entries {
		if e.SaveID == "bad" {
			t.Fatalf("failing entity must be absent from the document")
		}
	}
}

func TestRegistry_CaptureDuplicateIDKeepsFirst(t *testing.T) {
	reg := newTestRegistry(t)
	first := &fakeEntity{id: "dup", tag: "player_state", st: playerState{X: 1}}
	second := &fakeEntity{id: "dup", tag: "player_state", st: playerState{X: 2}}

	doc := reg.Capture(captureInfo(), []Saveable{first, second})
	if len(doc.Entries) != 1 {
		t.Fatalf("entries=%d want 1", len(doc.Entries))
	}
	if doc.Entries[0].StateJSON != `{"x":1,"y":0,"z":0,"yaw":0}` {
		t.Fatalf("expected first writer kept, got %s", doc.Entries[0].StateJSON)
	}
}

func TestRegistry_DistributeMissingEntryIsNoop(t *testing.T) {
	reg := newTestRegistry(t)
	known := &fakeEntity{id: "known", tag: "player_state", st: playerState{X: 7}}
	doc := reg.Capture(captureInfo(), []Saveable{known})

	newcomer := &fakeEntity{id: "newcomer", tag: "player_state", st: playerState{X: 42}}
	reg.Distribute(doc, []Saveable{known, newcomer})

	if newcomer.st.X != 42 || newcomer.restored != 0 {
		t.Fatalf("entity without an entry must keep its state: %+v", newcomer.st)
	}
}

func TestRegistry_DistributeSkipsBadBlob(t *testing.T) {
	reg := newTestRegistry(t)
	good := &fakeEntity{id: "good", tag: "player_state"}
	bad := &fakeEntity{id: "bad", tag: "player_state", st: playerState{X: 9}}

	doc := Document{
		Version: DocVersion,
		SavedAt: "2026-03-14T21:04:05Z",
		Entries: []Entry{
			{SaveID: "bad", StateJSON: `{{nope`, TypeTag: "player_state"},
			{SaveID: "good", StateJSON: `{"x":1,"y":2,"z":3,"yaw":4}`, TypeTag: "player_state"},
		},
	}
	reg.Distribute(doc, []Saveable{good, bad})

	if bad.st.X != 9 {
		t.Fatalf("bad blob must leave entity untouched: %+v", bad.st)
	}
	if good.st != (playerState{X: 1, Y: 2, Z: 3, Yaw: 4}) {
		t.Fatalf("good entity must still restore: %+v", good.st)
	}
}

func TestRegistry_DistributeSkipsUnknownTag(t *testing.T) {
	reg := newTestRegistry(t)
	e := &fakeEntity{id: "e", tag: "player_state", st: playerState{X: 3}}
	doc := Document{
		Version: DocVersion,
		Entries: []Entry{{SaveID: "e", StateJSON: `{}`, TypeTag: "never_registered"}},
	}
	reg.Distribute(doc, []Saveable{e})
	if e.st.X != 3 || e.restored != 0 {
		t.Fatalf("unknown tag must not mutate entity: %+v", e.st)
	}
}

func TestRegistry_DistributeSurvivesRestoreError(t *testing.T) {
	reg := newTestRegistry(t)
	bad := &fakeEntity{id: "bad", tag: "player_state", failRestore: true}
	good := &fakeEntity{id: "good", tag: "player_state"}
	doc := reg.Capture(captureInfo(), []Saveable{bad, good})

	good.st = playerState{}
	reg.Distribute(doc, []Saveable{bad, good})
	if good.restored != 1 {
		t.Fatalf("good entity must restore despite sibling failure")
	}
}

func TestCodec_RegisterRejectsDuplicateTag(t *testing.T) {
	codec := NewCodec()
	if err := codec.Register("t", JSONDecoder[playerState]()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := codec.Register("t", JSONDecoder[playerState]()); err == nil {
		t.Fatalf("expected duplicate tag rejected")
	}
}
