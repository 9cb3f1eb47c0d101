package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	data := `
max_slots: 4
save_dir: /tmp/fe-saves
autosave_every_seconds: 300
start_location: basement
cloud:
  prefix: fe
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.MaxSlots != 4 || c.SaveDir != "/tmp/fe-saves" || c.AutosaveEverySec != 300 {
		t.Fatalf("config: %+v", c)
	}
	if c.StartLocation != "basement" || c.Cloud.Prefix != "fe" {
		t.Fatalf("config: %+v", c)
	}
	// Unset fields keep their defaults.
	if c.SaveFileExt != ".save.json" {
		t.Fatalf("ext=%s", c.SaveFileExt)
	}
}

func TestLoadFillsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := os.WriteFile(path, []byte("max_slots: -1\nsave_file_ext: \"\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.MaxSlots != 10 || c.SaveFileExt != ".save.json" {
		t.Fatalf("config: %+v", c)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	if c.MaxSlots != Defaults().MaxSlots {
		t.Fatalf("defaults not returned: %+v", c)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := os.WriteFile(path, []byte("max_slots: [oops\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
