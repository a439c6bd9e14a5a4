package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Engine.Path != filepath.Join("data", "arkdb", "arkdb.sqlite") {
		t.Errorf("engine path = %q", cfg.Engine.Path)
	}
	if cfg.Snapshot.Storage.Path != filepath.Join("data", "arkdb", "storage") {
		t.Errorf("storage path = %q", cfg.Snapshot.Storage.Path)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arkdb.yaml")
	data := `
name: shop
data_dir: /var/lib/shop
schema_file: schema.yaml
engine:
  type: memory
http:
  addr: ":9999"
  read_timeout: 5s
snapshot:
  compress: true
  storage:
    type: s3
    s3:
      bucket: backups
      use_path_style: true
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Name != "shop" || cfg.Engine.Type != EngineMemory || cfg.HTTP.Addr != ":9999" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.HTTP.ReadTimeout != 5*time.Second {
		t.Errorf("read timeout = %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 60*time.Second {
		t.Errorf("defaults not kept: write timeout = %v", cfg.HTTP.WriteTimeout)
	}
	if !cfg.Snapshot.Compress || cfg.Snapshot.Storage.S3.Bucket != "backups" || !cfg.Snapshot.Storage.S3.UsePathStyle {
		t.Errorf("snapshot config = %+v", cfg.Snapshot)
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromFile_JSONAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "arkdb.json")
	os.WriteFile(jsonPath, []byte(`{"name":"j","engine":{"type":"memory"}}`), 0644)
	cfg, err := LoadFromFile(jsonPath)
	if err != nil || cfg.Name != "j" {
		t.Fatalf("LoadFromFile json = %+v, %v", cfg, err)
	}

	tomlPath := filepath.Join(dir, "arkdb.toml")
	os.WriteFile(tomlPath, []byte(`name = "x"`), 0644)
	if _, err := LoadFromFile(tomlPath); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ARKDB_NAME", "envdb")
	t.Setenv("ARKDB_VERSION", "4")
	t.Setenv("ARKDB_ENGINE_TYPE", "memory")
	t.Setenv("ARKDB_HTTP_READ_TIMEOUT", "2s")
	t.Setenv("ARKDB_GRPC_ENABLED", "false")
	t.Setenv("ARKDB_S3_BUCKET", "b")

	cfg := DefaultConfig()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Name != "envdb" || cfg.Version != 4 || cfg.Engine.Type != EngineMemory {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second || cfg.GRPC.Enabled || cfg.Snapshot.Storage.S3.Bucket != "b" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	t.Setenv("ARKDB_VERSION", "four")
	if err := LoadFromEnv(DefaultConfig()); err == nil {
		t.Error("expected error for non-numeric version")
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("ARKDB_DOTENV_TEST_NAME=fromfile\n"), 0644)
	t.Setenv("ARKDB_DOTENV_TEST_NAME", "")
	os.Unsetenv("ARKDB_DOTENV_TEST_NAME")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("ARKDB_DOTENV_TEST_NAME"); got != "fromfile" {
		t.Errorf("variable = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad engine", func(c *Config) { c.Engine.Type = "rocks" }},
		{"sqlite without path", func(c *Config) { c.Engine.Path = "" }},
		{"negative version", func(c *Config) { c.Version = -1 }},
		{"bad storage", func(c *Config) { c.Snapshot.Storage.Type = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Snapshot.Storage.Type = "s3" }},
		{"grpc without addr", func(c *Config) { c.GRPC.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
