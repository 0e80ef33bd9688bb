package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// EnvPrefix namespaces environment overrides, e.g. RELATIONS_DATABASE_DSN.
const EnvPrefix = "RELATIONS"

type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Cache    Cache    `yaml:"cache"`
	Redis    Redis    `yaml:"redis"`
	Trace    Trace    `yaml:"trace"`
	Backup   Backup   `yaml:"backup"`
	Log      Log      `yaml:"log"`
}

type Server struct {
	Addr            string        `yaml:"addr" split_words:"true"`
	APIKeyHash      string        `yaml:"apiKeyHash" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
}

type Database struct {
	Driver string `yaml:"driver" split_words:"true"` // postgres, sqlite
	DSN    string `yaml:"dsn" split_words:"true"`
}

type Cache struct {
	Driver        string        `yaml:"driver" split_words:"true"` // memory, memcached, none
	MemcachedAddr string        `yaml:"memcachedAddr" split_words:"true"`
	TTL           time.Duration `yaml:"ttl" split_words:"true"`
}

// Redis is optional. Without an address events are not published and the
// realtime endpoint is disabled.
type Redis struct {
	Addr     string `yaml:"addr" split_words:"true"`
	Password string `yaml:"password" split_words:"true"`
	DB       int    `yaml:"db" split_words:"true"`
}

type Trace struct {
	Enable      bool   `yaml:"enable" split_words:"true"`
	Endpoint    string `yaml:"endpoint" split_words:"true"`
	ServiceName string `yaml:"serviceName" split_words:"true"`
}

type Backup struct {
	Enable   bool   `yaml:"enable" split_words:"true"`
	Schedule string `yaml:"schedule" split_words:"true"`
	Keep     int    `yaml:"keep" split_words:"true"`
	Prefix   string `yaml:"prefix" split_words:"true"`
	S3       S3     `yaml:"s3" split_words:"true"`
}

type S3 struct {
	Endpoint  string `yaml:"endpoint" split_words:"true"`
	Region    string `yaml:"region" split_words:"true"`
	Bucket    string `yaml:"bucket" split_words:"true"`
	AccessKey string `yaml:"accessKey" split_words:"true"`
	SecretKey string `yaml:"secretKey" split_words:"true"`
}

type Log struct {
	Development bool   `yaml:"development" split_words:"true"`
	Level       string `yaml:"level" split_words:"true"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{
			Driver: "sqlite",
			DSN:    "relations.db",
		},
		Cache: Cache{
			Driver: "memory",
			TTL:    10 * time.Minute,
		},
		Trace: Trace{
			ServiceName: "relations",
		},
		Backup: Backup{
			Schedule: "0 3 * * *",
			Keep:     4,
			Prefix:   "relations/",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load starts from Default, applies the YAML file at path (skipped when path
// is empty), then a .env file in the working directory if present, then
// RELATIONS_* environment variables.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "open config")
		}
		defer file.Close()

		err = yaml.NewDecoder(file).Decode(&config)
		if err != nil {
			return Config{}, errors.Wrapf(err, "decode config %s", path)
		}
	}

	_ = godotenv.Load()

	err := envconfig.Process(EnvPrefix, &config)
	if err != nil {
		return Config{}, errors.Wrap(err, "read environment")
	}

	return config, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		add("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("database.dsn is required")
	}

	switch c.Cache.Driver {
	case "memory", "none", "":
	case "memcached":
		if c.Cache.MemcachedAddr == "" {
			add("cache.memcachedAddr is required for the memcached cache")
		}
	default:
		add("cache.driver must be memory, memcached or none, got %q", c.Cache.Driver)
	}
	if c.Cache.TTL < 0 {
		add("cache.ttl must not be negative")
	}

	if c.Trace.Enable && c.Trace.Endpoint == "" {
		add("trace.endpoint is required when tracing is enabled")
	}

	if c.Backup.Enable {
		if c.Backup.S3.Bucket == "" {
			add("backup.s3.bucket is required when backups are enabled")
		}
		if c.Backup.S3.Region == "" {
			add("backup.s3.region is required when backups are enabled")
		}
		if c.Backup.Keep < 1 {
			add("backup.keep must be at least 1")
		}
		if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
			add("backup.schedule: %v", err)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
