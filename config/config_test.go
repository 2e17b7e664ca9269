package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[runtime]
default-heap-size = 256
min-heap-size = 64
max-heap-size = 65536
schedulers = 4

[crashdump]
path = "crashes.db"

[log]
verbosity = 2
`
	if err := os.WriteFile(filepath.Join(dir, "atomvm.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runtime.DefaultHeapSize != 256 {
		t.Errorf("DefaultHeapSize = %d, want 256", cfg.Runtime.DefaultHeapSize)
	}
	if cfg.Runtime.MinHeapSize != 64 || cfg.Runtime.MaxHeapSize != 65536 {
		t.Errorf("heap bounds = %d/%d, want 64/65536",
			cfg.Runtime.MinHeapSize, cfg.Runtime.MaxHeapSize)
	}
	if cfg.Runtime.Schedulers != 4 {
		t.Errorf("Schedulers = %d, want 4", cfg.Runtime.Schedulers)
	}
	if cfg.CrashDump.Path != "crashes.db" {
		t.Errorf("CrashDump.Path = %q, want crashes.db", cfg.CrashDump.Path)
	}
	if cfg.Log.Verbosity != 2 {
		t.Errorf("Log.Verbosity = %d, want 2", cfg.Log.Verbosity)
	}
	if cfg.Dir == "" {
		t.Error("Dir not set at load time")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runtime.DefaultHeapSize != 128 {
		t.Errorf("DefaultHeapSize = %d, want default 128", cfg.Runtime.DefaultHeapSize)
	}
	if cfg.Runtime.Schedulers != 1 {
		t.Errorf("Schedulers = %d, want default 1", cfg.Runtime.Schedulers)
	}
	if cfg.CrashDump.Path != "" {
		t.Errorf("CrashDump.Path = %q, want empty", cfg.CrashDump.Path)
	}
}

func TestLoadPartialConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "atomvm.toml"),
		[]byte("[crashdump]\npath = \"x.db\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runtime.DefaultHeapSize != 128 || cfg.Runtime.Schedulers != 1 {
		t.Error("partial config did not fall back to defaults")
	}
	if cfg.CrashDump.Path != "x.db" {
		t.Errorf("CrashDump.Path = %q, want x.db", cfg.CrashDump.Path)
	}
}

func TestLoadBadToml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "atomvm.toml"),
		[]byte("[runtime\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("Load accepted malformed TOML")
	}
}
