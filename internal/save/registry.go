package save

import (
	"encoding/json"
	"log"
	"time"
)

// Registry bridges live saveables and save documents. It knows nothing about
// concrete entity types beyond their Saveable capability and the codec tags
// they registered.
type Registry struct {
	codec  *Codec
	logger *log.Logger
}

func NewRegistry(codec *Codec, logger *log.Logger) *Registry {
	return &Registry{codec: codec, logger: logger}
}

func (r *Registry) Codec() *Codec { return r.codec }

// CaptureInfo carries envelope metadata supplied by the simulation clock.
type CaptureInfo struct {
	Now      time.Time
	Location string
	PlayTime float64
}

// Capture asks every saveable for its state and assembles a fresh document.
// A saveable that fails to capture is logged and skipped; one bad entity must
// not abort the whole save. Duplicate save IDs keep the first writer.
func (r *Registry) Capture(info CaptureInfo, entities []Saveable) Document {
	doc := Document{
		Version:  DocVersion,
		SavedAt:  info.Now.UTC().Format(TimeLayout),
		Location: info.Location,
		PlayTime: info.PlayTime,
		Entries:  []Entry{},
	}
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		id := e.SaveID()
		if id == "" {
			r.printf("capture skip: empty save_id type=%s", e.TypeTag())
			continue
		}
		if seen[id] {
			r.printf("capture duplicate save_id=%s type=%s: keeping first", id, e.TypeTag())
			continue
		}
		state, err := e.CaptureState()
		if err != nil {
			r.printf("capture skip save_id=%s: %v", id, err)
			continue
		}
		b, err := json.Marshal(state)
		if err != nil {
			r.printf("capture skip save_id=%s: marshal: %v", id, err)
			continue
		}
		seen[id] = true
		doc.Entries = append(doc.Entries, Entry{SaveID: id, StateJSON: string(b), TypeTag: e.TypeTag()})
	}
	return doc
}

// Distribute hands saved entries back to matching saveables by ID. A saveable
// with no entry keeps its current state; a blob that fails to decode or apply
// is logged and skipped, mirroring the capture policy.
func (r *Registry) Distribute(doc Document, entities []Saveable) {
	byID := make(map[string]Entry, len(doc.Entries))
	for _, en := range doc.Entries {
		byID[en.SaveID] = en
	}
	for _, e := range entities {
		en, ok := byID[e.SaveID()]
		if !ok {
			continue
		}
		v, err := r.codec.Decode(en.TypeTag, []byte(en.StateJSON))
		if err != nil {
			r.printf("restore skip save_id=%s: %v", en.SaveID, err)
			continue
		}
		if err := e.RestoreState(v); err != nil {
			r.printf("restore skip save_id=%s: apply: %v", en.SaveID, err)
		}
	}
}

func (r *Registry) printf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
