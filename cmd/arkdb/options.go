package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/arkilian/arkdb/internal/config"
)

// globalOptions are the flags shared by every subcommand. Flags win over
// environment variables, which win over the config file.
type globalOptions struct {
	configFile string
	envFile    string
	dataDir    string
	schemaFile string
	engine     string
	enginePath string
	name       string

	flags *pflag.FlagSet
}

func (o *globalOptions) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&o.envFile, "env-file", ".env", "Dotenv file loaded before reading ARKDB_* variables")
	fs.StringVar(&o.dataDir, "data-dir", "", "Base directory for all data files")
	fs.StringVar(&o.schemaFile, "schema", "", "Schema definition file (YAML or JSON)")
	fs.StringVar(&o.engine, "engine", "", "Host engine: memory or sqlite")
	fs.StringVar(&o.enginePath, "engine-path", "", "SQLite database file")
	fs.StringVar(&o.name, "name", "", "Logical database name")
	o.flags = fs
}

// load builds the effective configuration.
func (o *globalOptions) load() (*config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if o.configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(o.configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	set := func(name string, dst *string, v string) {
		if o.flags.Changed(name) {
			*dst = v
		}
	}
	set("data-dir", &cfg.DataDir, o.dataDir)
	set("schema", &cfg.SchemaFile, o.schemaFile)
	set("engine", &cfg.Engine.Type, o.engine)
	set("engine-path", &cfg.Engine.Path, o.enginePath)
	set("name", &cfg.Name, o.name)

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
