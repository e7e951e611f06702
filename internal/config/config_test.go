package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, EnvPrefix) {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
}

func writeFile(t *testing.T, p, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_DefaultsWhenAbsent(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := DefaultConfig()
	if cfg.MetadataCacheSize != want.MetadataCacheSize || cfg.HDF5 != want.HDF5 || cfg.Log != want.Log {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if len(cfg.Datasets) != 0 {
		t.Fatalf("expected no datasets, got %v", cfg.Datasets)
	}
}

func TestLoad_ExplicitMissingFails(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cannot read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	p := filepath.Join(home, ".swiftserve", "swiftserve.yaml")
	writeFile(t, p, `
datasets:
  sample_file: ~/data/cosmo_volume_example.hdf5
  colibre: /data/colibre_0023.hdf5
max_mask_size: 1000000
metadata_cache_size: 16
hdf5:
  shared_lock: false
  lock_timeout: 250ms
  read_ahead: true
log:
  level: debug
  format: json
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.Datasets["sample_file"], filepath.Join(home, "data", "cosmo_volume_example.hdf5"); got != want {
		t.Fatalf("sample_file = %q, want %q", got, want)
	}
	if cfg.Datasets["colibre"] != "/data/colibre_0023.hdf5" {
		t.Fatalf("colibre = %q", cfg.Datasets["colibre"])
	}
	if cfg.MaxMaskSize != 1000000 || cfg.MetadataCacheSize != 16 {
		t.Fatalf("unexpected sizes: %+v", cfg)
	}
	if cfg.HDF5.SharedLock || !cfg.HDF5.ReadAhead || cfg.HDF5.LockTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected hdf5 settings: %+v", cfg.HDF5)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != FormatJSON {
		t.Fatalf("unexpected log settings: %+v", cfg.Log)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	p := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, p, "datasets: [unclosed\n")

	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "invalid YAML in") {
		t.Fatalf("expected YAML error, got %v", err)
	}
}

func TestLoad_EnvOverridesDotEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "swiftserve.yaml")
	writeFile(t, p, "max_mask_size: 10\nmetadata_cache_size: 4\ndatasets:\n  a: /a.hdf5\n")
	writeFile(t, filepath.Join(dir, ".env"), "# overrides\nSWIFTSERVE_MAX_MASK_SIZE=20\nSWIFTSERVE_METADATA_CACHE_SIZE=8\nSWIFTSERVE_LOG_FORMAT=\"JSON\"\n")
	t.Setenv("SWIFTSERVE_MAX_MASK_SIZE", "30")
	t.Setenv("SWIFTSERVE_DATASETS", "b=/b.hdf5, c = /c.hdf5")
	t.Setenv("SWIFTSERVE_LOCK_TIMEOUT", "2s")
	t.Setenv("SWIFTSERVE_SHARED_LOCK", "false")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxMaskSize != 30 {
		t.Fatalf("expected env to win, got %d", cfg.MaxMaskSize)
	}
	if cfg.MetadataCacheSize != 8 {
		t.Fatalf("expected dotenv to override file, got %d", cfg.MetadataCacheSize)
	}
	if cfg.Log.Format != FormatJSON {
		t.Fatalf("expected quoted dotenv value to be unquoted, got %q", cfg.Log.Format)
	}
	if cfg.HDF5.LockTimeout != 2*time.Second || cfg.HDF5.SharedLock {
		t.Fatalf("unexpected hdf5 settings: %+v", cfg.HDF5)
	}
	for alias, want := range map[string]string{"a": "/a.hdf5", "b": "/b.hdf5", "c": "/c.hdf5"} {
		if cfg.Datasets[alias] != want {
			t.Fatalf("dataset %s = %q, want %q", alias, cfg.Datasets[alias], want)
		}
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "negative mask size", yaml: "max_mask_size: -1\n"},
		{name: "zero cache", yaml: "metadata_cache_size: 0\n"},
		{name: "bad format", yaml: "log:\n  format: xml\n"},
		{name: "bad env int", env: map[string]string{"SWIFTSERVE_MAX_MASK_SIZE": "lots"}},
		{name: "bad env bool", env: map[string]string{"SWIFTSERVE_READ_AHEAD": "maybe"}},
		{name: "bad env duration", env: map[string]string{"SWIFTSERVE_LOCK_TIMEOUT": "soon"}},
		{name: "bad env datasets", env: map[string]string{"SWIFTSERVE_DATASETS": "nopath"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			p := filepath.Join(t.TempDir(), "swiftserve.yaml")
			writeFile(t, p, tt.yaml)
			if _, err := Load(p); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadDotEnv_NotExist(t *testing.T) {
	m, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".env")
	writeFile(t, p, "# comment\nA=1\n\nB=two=2\n=skipped\nnoequals\nC='q'\n")

	m, err := LoadDotEnv(p)
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(m) != 3 || m["A"] != "1" || m["B"] != "two=2" || m["C"] != "q" {
		t.Fatalf("unexpected map: %v", m)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	p := filepath.Join(t.TempDir(), "nested", "swiftserve.yaml")
	cfg := DefaultConfig()
	cfg.Datasets["sample"] = "/data/sample.hdf5"
	cfg.MaxMaskSize = 5

	if err := Save(cfg, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Datasets["sample"] != "/data/sample.hdf5" || got.MaxMaskSize != 5 || got.HDF5 != cfg.HDF5 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/snap.hdf5")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "snap.hdf5") {
		t.Fatalf("ExpandPath = %q", got)
	}
	if got, _ := ExpandPath("/abs/snap.hdf5"); got != "/abs/snap.hdf5" {
		t.Fatalf("ExpandPath changed an absolute path: %q", got)
	}
}
