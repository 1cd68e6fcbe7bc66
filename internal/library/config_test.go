package library

import (
	"os"
	"path/filepath"
	"testing"
)

func validYAML() []byte {
	return []byte(`default: alpha
libraries:
  - id: alpha
    name: Alpha Library
    base_url: https://alpha.example.org
    capability: generic
    flags:
      show_queue_position: true
      enable_history: true
  - id: beta
    name: Beta Library
    base_url: https://beta.example.org
    capability: concise
`)
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML(validYAML())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Default != "alpha" || len(cfg.Libraries) != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	alpha, ok := cfg.Find("alpha")
	if !ok {
		t.Fatal("alpha not found")
	}
	if !alpha.Flags.ShowQueuePosition || !alpha.Flags.EnableHistory {
		t.Errorf("flags = %+v", alpha.Flags)
	}
	if alpha.Flags.ShowOnlineResources {
		t.Error("unset flag defaulted true")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no libraries", `default: x`},
		{"empty id", "libraries:\n  - name: X\n    base_url: https://x"},
		{"duplicate id", "libraries:\n  - id: a\n    base_url: https://x\n  - id: a\n    base_url: https://y"},
		{"missing base_url", "libraries:\n  - id: a"},
		{"relative base_url", "libraries:\n  - id: a\n    base_url: /catalog"},
		{"unknown capability", "libraries:\n  - id: a\n    base_url: https://x\n    capability: fancy"},
		{"dangling default", "default: b\nlibraries:\n  - id: a\n    base_url: https://x"},
	}
	for _, c := range cases {
		if _, err := FromYAML([]byte(c.yaml)); err == nil {
			t.Errorf("%s: validation passed", c.name)
		}
	}
}

func TestActive(t *testing.T) {
	cfg, err := FromYAML(validYAML())
	if err != nil {
		t.Fatal(err)
	}
	l, err := cfg.Active("")
	if err != nil || l.ID != "alpha" {
		t.Errorf("Active default = %v, %v", l, err)
	}
	l, err = cfg.Active("beta")
	if err != nil || l.ID != "beta" {
		t.Errorf("Active override = %v, %v", l, err)
	}
	if _, err := cfg.Active("gamma"); err == nil {
		t.Error("unknown override accepted")
	}
}

func TestActiveSoleEntry(t *testing.T) {
	cfg, err := FromYAML([]byte("libraries:\n  - id: only\n    base_url: https://x"))
	if err != nil {
		t.Fatal(err)
	}
	l, err := cfg.Active("")
	if err != nil || l.ID != "only" {
		t.Errorf("Active = %v, %v", l, err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := FromYAML(validYAML())
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Save(dir); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Default != cfg.Default || len(loaded.Libraries) != len(cfg.Libraries) {
		t.Errorf("round trip lost data: %+v", loaded)
	}
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Error("Load of missing file succeeded")
	}
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Errorf("LoadOptional = %v, %v", cfg, err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "libraries.yml"), []byte("::: not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("corrupt yaml accepted")
	}
}

func TestDefaultTemplateValidates(t *testing.T) {
	cfg := Default()
	if _, ok := cfg.Find(cfg.Default); !ok {
		t.Error("default template's default library missing")
	}
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatal(err)
	}
}
