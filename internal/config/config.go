// Package config provides layered configuration for the arkdb service:
// defaults, then a YAML or JSON file, then a .env file, then ARKDB_
// environment variables, then command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Engine types.
const (
	EngineMemory = "memory"
	EngineSQLite = "sqlite"
)

// Config holds the configuration of an arkdb service.
type Config struct {
	// Name is the logical database name written into snapshots
	Name string `json:"name" yaml:"name"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// SchemaFile is the YAML or JSON schema definition
	SchemaFile string `json:"schema_file" yaml:"schema_file"`

	// Version requests a minimum host topology version (0 = automatic)
	Version int `json:"version" yaml:"version"`

	// Engine configuration
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Snapshot configuration
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
}

// EngineConfig selects the host engine.
type EngineConfig struct {
	// Type is the engine type: memory, sqlite
	Type string `json:"type" yaml:"type"`

	// Path is the SQLite database file (for sqlite type)
	Path string `json:"path" yaml:"path"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// SnapshotConfig holds snapshot export settings.
type SnapshotConfig struct {
	// Storage is where snapshots are saved
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Prefix is the object path prefix for saved snapshots
	Prefix string `json:"prefix" yaml:"prefix"`

	// Compress writes snappy-compressed snapshots
	Compress bool `json:"compress" yaml:"compress"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Name:    "arkdb",
		DataDir: "./data/arkdb",
		Engine: EngineConfig{
			Type: EngineSQLite,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Snapshot: SnapshotConfig{
			Storage: StorageConfig{Type: "local"},
			Prefix:  "snapshots",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/arkdb"
	}
	if c.Name == "" {
		c.Name = "arkdb"
	}
	if c.Engine.Type == EngineSQLite && c.Engine.Path == "" {
		c.Engine.Path = filepath.Join(c.DataDir, c.Name+".sqlite")
	}
	if c.Snapshot.Storage.Path == "" {
		c.Snapshot.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Version < 0 {
		return fmt.Errorf("version must not be negative, got %d", c.Version)
	}

	switch c.Engine.Type {
	case EngineMemory:
	case EngineSQLite:
		if c.Engine.Path == "" {
			return fmt.Errorf("engine.path is required when engine type is sqlite")
		}
	default:
		return fmt.Errorf("invalid engine type: %s (must be memory or sqlite)", c.Engine.Type)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required when grpc is enabled")
	}

	s := c.Snapshot.Storage
	if s.Type != "local" && s.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", s.Type)
	}
	if s.Type == "s3" && s.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process
// environment without overriding variables already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ARKDB_ prefix.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("ARKDB_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("ARKDB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ARKDB_SCHEMA_FILE"); v != "" {
		cfg.SchemaFile = v
	}
	if v := os.Getenv("ARKDB_VERSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARKDB_VERSION: %w", err)
		}
		cfg.Version = n
	}

	// Engine configuration
	if v := os.Getenv("ARKDB_ENGINE_TYPE"); v != "" {
		cfg.Engine.Type = v
	}
	if v := os.Getenv("ARKDB_ENGINE_PATH"); v != "" {
		cfg.Engine.Path = v
	}

	// HTTP configuration
	if v := os.Getenv("ARKDB_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("ARKDB_HTTP_READ_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ARKDB_HTTP_READ_TIMEOUT: %w", err)
		}
		cfg.HTTP.ReadTimeout = d
	}
	if v := os.Getenv("ARKDB_HTTP_WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ARKDB_HTTP_WRITE_TIMEOUT: %w", err)
		}
		cfg.HTTP.WriteTimeout = d
	}

	// gRPC configuration
	if v := os.Getenv("ARKDB_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("ARKDB_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Snapshot configuration
	if v := os.Getenv("ARKDB_SNAPSHOT_COMPRESS"); v != "" {
		cfg.Snapshot.Compress = v == "true" || v == "1"
	}
	if v := os.Getenv("ARKDB_SNAPSHOT_PREFIX"); v != "" {
		cfg.Snapshot.Prefix = v
	}
	if v := os.Getenv("ARKDB_STORAGE_TYPE"); v != "" {
		cfg.Snapshot.Storage.Type = v
	}
	if v := os.Getenv("ARKDB_STORAGE_PATH"); v != "" {
		cfg.Snapshot.Storage.Path = v
	}
	if v := os.Getenv("ARKDB_S3_BUCKET"); v != "" {
		cfg.Snapshot.Storage.S3.Bucket = v
	}
	if v := os.Getenv("ARKDB_S3_REGION"); v != "" {
		cfg.Snapshot.Storage.S3.Region = v
	}
	if v := os.Getenv("ARKDB_S3_ENDPOINT"); v != "" {
		cfg.Snapshot.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("ARKDB_S3_USE_PATH_STYLE"); v != "" {
		cfg.Snapshot.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}
	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Engine.Type == EngineSQLite {
		dirs = append(dirs, filepath.Dir(c.Engine.Path))
	}
	if c.Snapshot.Storage.Type == "local" {
		dirs = append(dirs, c.Snapshot.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
