// Package config loads settings from defaults, an optional YAML file,
// CARDSYNC_-prefixed environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/yourusername/cardsync/internal/srs"
)

const envPrefix = "CARDSYNC_"

type Config struct {
	Database  Database     `koanf:"database"`
	Server    Server       `koanf:"server"`
	Sync      Sync         `koanf:"sync"`
	Scheduler srs.Settings `koanf:"scheduler"`
}

type Database struct {
	Path string `koanf:"path" validate:"required"`
}

type Server struct {
	URL   string `koanf:"url" validate:"required,url"`
	Token string `koanf:"token" validate:"required"`
}

type Sync struct {
	Interval        time.Duration `koanf:"interval" validate:"gt=0"`
	BatchSize       int           `koanf:"batch_size" validate:"gt=0"`
	RetentionDays   int           `koanf:"retention_days" validate:"gte=1"`
	CheckpointEvery int           `koanf:"checkpoint_every" validate:"gte=2"`
	MaxRetries      uint64        `koanf:"max_retries" validate:"gte=1"`
}

func Default() Config {
	return Config{
		Database: Database{Path: "cardsync.db"},
		Sync: Sync{
			Interval:        5 * time.Minute,
			BatchSize:       100,
			RetentionDays:   7,
			CheckpointEvery: 10,
			MaxRetries:      3,
		},
		Scheduler: srs.DefaultSettings(),
	}
}

// Flags returns the flag set Load understands. Flag names use dots so they
// map straight onto config keys.
func Flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("cardsync", pflag.ContinueOnError)
	flags.String("config", "", "path to YAML config file")
	flags.String("database.path", "", "path to the local sqlite database")
	flags.String("server.url", "", "sync server base URL")
	flags.String("server.token", "", "sync server API token")
	flags.Duration("sync.interval", 0, "periodic background sync interval")
	return flags
}

func Load(flags *pflag.FlagSet) (Config, error) {
	var cfg Config
	k := koanf.New(".")

	// Defaults go in first so later layers override per key, and so unset
	// flags never shadow them with zero values.
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load config defaults: %w", err)
	}

	path, _ := flags.GetString("config")
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file (path: %s): %w", path, err)
		}
	}

	// Double underscore separates nesting levels so keys like batch_size
	// survive: CARDSYNC_SYNC__BATCH_SIZE -> sync.batch_size.
	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load config from env: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("load config from flags: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return c.Scheduler.Validate()
}
