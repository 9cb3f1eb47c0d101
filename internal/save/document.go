package save

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const DocVersion = 1

// TimeLayout is the envelope timestamp format. Sortable, so the cloud
// mirror's newer-remote guard can compare stamps directly.
const TimeLayout = time.RFC3339

// Document is the full serialized envelope for one slot.
type Document struct {
	Version  int     `json:"version"`
	SavedAt  string  `json:"saved_at"`
	Location string  `json:"location"`
	PlayTime float64 `json:"play_time_seconds"`
	Entries  []Entry `json:"entries"`
}

// Entry is one saveable's serialized state. StateJSON is itself JSON: each
// blob is independently parseable once its type tag is known.
type Entry struct {
	SaveID    string `json:"save_id"`
	StateJSON string `json:"state_json"`
	TypeTag   string `json:"type_tag"`
}

// Metadata is the lightweight slice of a document used for slot listings.
type Metadata struct {
	SavedAt  string  `json:"saved_at"`
	Location string  `json:"location"`
	PlayTime float64 `json:"play_time_seconds"`
}

func (d Document) Meta() Metadata {
	return Metadata{SavedAt: d.SavedAt, Location: d.Location, PlayTime: d.PlayTime}
}

//go:embed savedoc.schema.json
var docSchemaJSON string

var (
	schemaOnce sync.Once
	docSchema  *jsonschema.Schema
	schemaErr  error
)

func envelopeSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		docSchema, schemaErr = jsonschema.CompileString("savedoc.schema.json", docSchemaJSON)
	})
	return docSchema, schemaErr
}

// EncodeDocument serializes a document. Output is indented; save files are
// meant to be readable in a text editor.
func EncodeDocument(d Document) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// DecodeDocument parses and schema-validates an envelope. Any failure wraps
// ErrCorrupt: a document that does not fully parse is fatal for that load.
func DecodeDocument(b []byte) (Document, error) {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	schema, err := envelopeSchema()
	if err != nil {
		return Document{}, fmt.Errorf("compile envelope schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return d, nil
}
