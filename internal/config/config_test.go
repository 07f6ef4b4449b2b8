package config

import (
	"os"
	"path/filepath"
	"testing"

	"psdkit/internal/psd"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.LayerCompression() != psd.RLE {
		t.Fatalf("default layer compression %v, want rle", cfg.LayerCompression())
	}
	if cfg.Compression.Archive.Codec != "lz4" {
		t.Fatalf("default archive codec %q, want lz4", cfg.Compression.Archive.Codec)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "psdkit.json")
	data := `{"compression": {"layer": "zip-prediction", "archive": {"codec": "zstd", "level": 9}}, "decode": {"workers": 4}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LayerCompression() != psd.ZipPrediction || cfg.Compression.Archive.Codec != "zstd" ||
		cfg.Compression.Archive.Level != 9 || cfg.Decode.Workers != 4 || cfg.Decode.SkipBroken {
		t.Fatalf("got %+v", cfg)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "psdkit.json")
	os.WriteFile(path, []byte(`{"decode": {"skip_broken": true}}`), 0644)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Decode.SkipBroken || cfg.LayerCompression() != psd.RLE || cfg.Compression.Archive.Codec != "lz4" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"bad json":    `{"compression":`,
		"bad scheme":  `{"compression": {"layer": "lzw"}}`,
		"bad codec":   `{"compression": {"archive": {"codec": "gzip"}}}`,
		"bad level":   `{"compression": {"archive": {"codec": "lz4", "level": 12}}}`,
		"bad workers": `{"decode": {"workers": -2}}`,
	}
	for name, data := range tests {
		path := filepath.Join(dir, name+".json")
		os.WriteFile(path, []byte(data), 0644)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for a missing explicit path")
	}
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LayerCompression() != psd.RLE {
		t.Fatalf("got %+v", cfg)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	cfg := Default()
	cfg.Decode.Workers = 2
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if *got != *cfg {
		t.Fatalf("got %+v, want %+v", got, cfg)
	}
}
