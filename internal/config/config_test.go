package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Project = "project-1"

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults with project", func(o *Options) {}, false},
		{"missing project", func(o *Options) { o.Project = "" }, true},
		{"bad conflict policy", func(o *Options) { o.Conflicts = "maybe" }, true},
		{"bad instance selection", func(o *Options) { o.InstanceTypeSelection = "sometimes" }, true},
		{"negative chunk size", func(o *Options) { o.ScatterChunkSize = -1 }, true},
		{"reorg with custom reorg", func(o *Options) {
			o.Reorg = true
			o.Extras = &Extras{CustomReorg: &CustomReorg{AppletID: "applet-1"}}
		}, true},
		{"custom reorg alone", func(o *Options) {
			o.Extras = &Extras{CustomReorg: &CustomReorg{AppletID: "applet-1"}}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadExtras(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "extras.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
defaultRuntimeAttrs:
  memory: 4 GiB
  cpu: 2
perTaskDxAttributes:
  align:
    instance: mem2_ssd1_v2_x8
`), 0o644); err != nil {
		t.Fatal(err)
	}
	ex, err := LoadExtras(yamlPath)
	if err != nil {
		t.Fatalf("LoadExtras: %v", err)
	}
	if ex.DefaultRuntimeAttrs == nil || ex.DefaultRuntimeAttrs.Memory != "4 GiB" {
		t.Errorf("defaults = %+v", ex.DefaultRuntimeAttrs)
	}
	if ex.PerTaskAttrs["align"].Instance != "mem2_ssd1_v2_x8" {
		t.Errorf("per-task = %+v", ex.PerTaskAttrs)
	}

	// JSON is a YAML subset; the same loader handles it.
	jsonPath := filepath.Join(dir, "extras.json")
	if err := os.WriteFile(jsonPath, []byte(`{"defaultRuntimeAttrs": {"docker": "ubuntu:24.04"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	ex, err = LoadExtras(jsonPath)
	if err != nil {
		t.Fatalf("LoadExtras json: %v", err)
	}
	if ex.DefaultRuntimeAttrs.Docker != "ubuntu:24.04" {
		t.Errorf("json extras = %+v", ex.DefaultRuntimeAttrs)
	}

	if _, err := LoadExtras(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
