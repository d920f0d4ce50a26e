package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "FITCOACH_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Postgres PostgresConfig `koanf:"postgres"`
	Redis    RedisConfig    `koanf:"redis"`
	Mongo    MongoConfig    `koanf:"mongo"`
	JWT      JWTConfig      `koanf:"jwt"`
	LLM      LLMConfig      `koanf:"llm"`
	Speech   SpeechConfig   `koanf:"speech"`
	Storage  StorageConfig  `koanf:"storage"`
	Workers  WorkersConfig  `koanf:"workers"`
	Cache    CacheConfig    `koanf:"cache"`
	Lock     LockConfig     `koanf:"lock"`
}

// ServerConfig: AllowedOrigins restricts websocket upgrades, empty accepts
// any origin. FITCOACH_SERVER_ALLOWED_ORIGINS takes a comma separated list.
type ServerConfig struct {
	Port           string        `koanf:"port"`
	GinMode        string        `koanf:"gin_mode"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	ShutdownGrace  time.Duration `koanf:"shutdown_grace"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type PostgresConfig struct {
	URI          string `koanf:"uri"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// RedisConfig: an empty Addr disables the cache, the distributed lock and
// background program jobs.
type RedisConfig struct {
	Addr string `koanf:"addr"`
}

type MongoConfig struct {
	URI            string `koanf:"uri"`
	DB             string `koanf:"db"`
	ForceTLSConfig bool   `koanf:"force_tls_config"`
	InsecureTLS    bool   `koanf:"insecure_tls"`
}

type JWTConfig struct {
	Secret string        `koanf:"secret"`
	Issuer string        `koanf:"issuer"`
	TTL    time.Duration `koanf:"ttl"`
}

type LLMConfig struct {
	Provider  string        `koanf:"provider"`
	Model     string        `koanf:"model"`
	APIKey    string        `koanf:"api_key"`
	ProjectID string        `koanf:"project_id"`
	Location  string        `koanf:"location"`
	Timeout   time.Duration `koanf:"timeout"`
}

type SpeechConfig struct {
	Enabled      bool   `koanf:"enabled"`
	LanguageCode string `koanf:"language_code"`
	SampleRate   int32  `koanf:"sample_rate"`
}

// StorageConfig: uploaded audio is archived to Bucket when set.
type StorageConfig struct {
	Bucket string `koanf:"bucket"`
}

type WorkersConfig struct {
	Count  int    `koanf:"count"`
	Stream string `koanf:"stream"`
	Group  string `koanf:"group"`
}

type CacheConfig struct {
	ProfileTTL time.Duration `koanf:"profile_ttl"`
}

type LockConfig struct {
	TTL  time.Duration `koanf:"ttl"`
	Wait time.Duration `koanf:"wait"`
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", GinMode: "release", ShutdownGrace: 15 * time.Second},
		Log:      LogConfig{Level: "info"},
		Postgres: PostgresConfig{MaxOpenConns: 100, AutoMigrate: true},
		Mongo:    MongoConfig{DB: "fitcoach"},
		JWT:      JWTConfig{Issuer: "fitcoach", TTL: 7 * 24 * time.Hour},
		LLM: LLMConfig{
			Provider: "vertex",
			Location: "us-central1",
			Timeout:  90 * time.Second,
		},
		Speech:  SpeechConfig{LanguageCode: "en-US", SampleRate: 48000},
		Workers: WorkersConfig{Count: 2, Stream: "program:stream", Group: "program-workers"},
		Cache:   CacheConfig{ProfileTTL: 10 * time.Minute},
		Lock:    LockConfig{Wait: 30 * time.Second},
	}
}

// Load starts from defaults, overlays the YAML file at path when it exists,
// then FITCOACH_* environment variables. FITCOACH_LLM_API_KEY maps to
// llm.api_key: the first segment after the prefix names the section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

var sections = map[string]bool{
	"server": true, "log": true, "postgres": true, "redis": true, "mongo": true, "jwt": true,
	"llm": true, "speech": true, "storage": true, "workers": true, "cache": true, "lock": true,
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	head, rest, ok := strings.Cut(s, "_")
	if ok && sections[head] {
		return head + "." + rest
	}
	return s
}

// LockTTL is the lease a conversation lock is taken with. A completing turn
// holds it across a reply and an extraction call, so it never drops below
// two generation timeouts plus a margin for the database work.
func (c *Config) LockTTL() time.Duration {
	floor := 2*c.LLM.Timeout + 30*time.Second
	if c.Lock.TTL > floor {
		return c.Lock.TTL
	}
	return floor
}

var validProviders = map[string]bool{"vertex": true, "gemini": true, "openai": true}

func (c *Config) Validate() error {
	var errs []error
	if c.Postgres.URI == "" {
		errs = append(errs, errors.New("postgres.uri is required"))
	}
	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("mongo.uri is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("jwt.ttl must be positive"))
	}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, fmt.Errorf("invalid llm.provider %q: must be one of vertex, gemini, openai", c.LLM.Provider))
	}
	switch c.LLM.Provider {
	case "vertex":
		if c.LLM.ProjectID == "" {
			errs = append(errs, errors.New("llm.project_id is required for the vertex provider"))
		}
	case "gemini", "openai":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.api_key is required for the %s provider", c.LLM.Provider))
		}
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.Workers.Count < 0 {
		errs = append(errs, errors.New("workers.count must be non-negative"))
	}
	return errors.Join(errs...)
}
