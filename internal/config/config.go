package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// DefaultFile is the config file looked up when no path is given.
const DefaultFile = "ceremony.yaml"

// Config is the fully resolved configuration.
type Config struct {
	DBPath    string       `yaml:"db_path" json:"db_path"`
	Timezone  string       `yaml:"timezone" json:"timezone"`
	WeekStart string       `yaml:"week_start" json:"week_start"`
	StoreKey  string       `yaml:"store_key" json:"store_key"`
	Sync      SyncConfig   `yaml:"sync" json:"sync"`
	Server    ServerConfig `yaml:"server" json:"server"`
}

// SyncConfig configures the device side of synchronization.
type SyncConfig struct {
	ServerURL     string        `yaml:"server_url" json:"server_url"`
	DeviceID      string        `yaml:"device_id" json:"device_id"`
	Secret        string        `yaml:"secret" json:"secret"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RetryInterval time.Duration `yaml:"retry_interval" json:"retry_interval"`
	StaleAfter    time.Duration `yaml:"stale_after" json:"stale_after"`
}

// Enabled reports whether a sync server is configured.
func (s SyncConfig) Enabled() bool {
	return s.ServerURL != ""
}

// ServerConfig configures the reference sync server.
type ServerConfig struct {
	Addr      string        `yaml:"addr" json:"addr"`
	DBPath    string        `yaml:"db_path" json:"db_path"`
	JWTSecret string        `yaml:"jwt_secret" json:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// fileConfig mirrors the schema; durations stay strings until validated.
type fileConfig struct {
	DBPath    string `json:"db_path"`
	Timezone  string `json:"timezone"`
	WeekStart string `json:"week_start"`
	StoreKey  string `json:"store_key"`
	Sync      struct {
		ServerURL     string `json:"server_url"`
		DeviceID      string `json:"device_id"`
		Secret        string `json:"secret"`
		Timeout       string `json:"timeout"`
		RetryInterval string `json:"retry_interval"`
		StaleAfter    string `json:"stale_after"`
	} `json:"sync"`
	Server struct {
		Addr      string `json:"addr"`
		DBPath    string `json:"db_path"`
		JWTSecret string `json:"jwt_secret"`
		TokenTTL  string `json:"token_ttl"`
	} `json:"server"`
}

// envOverrides maps environment variables to document paths.
var envOverrides = []struct {
	name string
	path []string
}{
	{"CEREMONY_DB_PATH", []string{"db_path"}},
	{"CEREMONY_TIMEZONE", []string{"timezone"}},
	{"CEREMONY_WEEK_START", []string{"week_start"}},
	{"CEREMONY_SERVER_URL", []string{"sync", "server_url"}},
	{"CEREMONY_DEVICE_ID", []string{"sync", "device_id"}},
	{"CEREMONY_DEVICE_SECRET", []string{"sync", "secret"}},
	{"CEREMONY_SYNC_TIMEOUT", []string{"sync", "timeout"}},
	{"CEREMONY_LISTEN_ADDR", []string{"server", "addr"}},
	{"CEREMONY_SERVER_DB_PATH", []string{"server", "db_path"}},
	{"CEREMONY_JWT_SECRET", []string{"server", "jwt_secret"}},
}

// Error is a configuration error with the document path it concerns.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Path, e.Message)
}

// Default returns the schema defaults with no file and no environment.
func Default() (*Config, error) {
	return resolve(map[string]any{})
}

// Load reads path, applies CEREMONY_* overrides from the process
// environment and validates the result.
//
// An empty path loads DefaultFile if it exists and defaults otherwise.
// An explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	doc, err := readFile(path)
	if err != nil {
		return nil, err
	}
	for _, o := range envOverrides {
		if v := getenv(o.name); v != "" {
			setPath(doc, o.path, v)
		}
	}
	return resolve(doc)
}

func readFile(path string) (map[string]any, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func setPath(doc map[string]any, path []string, value string) {
	m := doc
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

func resolve(doc map[string]any) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := value.Validate(); err != nil {
		return nil, schemaError(err)
	}

	var raw fileConfig
	if err := value.Decode(&raw); err != nil {
		return nil, schemaError(err)
	}
	return build(raw)
}

// schemaError reduces a CUE error list to its first entry.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &Error{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

func build(raw fileConfig) (*Config, error) {
	cfg := &Config{
		DBPath:    raw.DBPath,
		Timezone:  raw.Timezone,
		WeekStart: raw.WeekStart,
		StoreKey:  raw.StoreKey,
		Sync: SyncConfig{
			ServerURL: strings.TrimRight(raw.Sync.ServerURL, "/"),
			DeviceID:  raw.Sync.DeviceID,
			Secret:    raw.Sync.Secret,
		},
		Server: ServerConfig{
			Addr:      raw.Server.Addr,
			DBPath:    raw.Server.DBPath,
			JWTSecret: raw.Server.JWTSecret,
		},
	}

	durations := []struct {
		path string
		src  string
		dst  *time.Duration
	}{
		{"sync.timeout", raw.Sync.Timeout, &cfg.Sync.Timeout},
		{"sync.retry_interval", raw.Sync.RetryInterval, &cfg.Sync.RetryInterval},
		{"sync.stale_after", raw.Sync.StaleAfter, &cfg.Sync.StaleAfter},
		{"server.token_ttl", raw.Server.TokenTTL, &cfg.Server.TokenTTL},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return nil, &Error{Path: d.path, Message: err.Error()}
		}
		*d.dst = v
	}
	if cfg.Sync.Timeout <= 0 {
		return nil, &Error{Path: "sync.timeout", Message: "must be positive"}
	}
	if cfg.Server.TokenTTL <= 0 {
		return nil, &Error{Path: "server.token_ttl", Message: "must be positive"}
	}

	if _, err := cfg.Location(); err != nil {
		return nil, &Error{Path: "timezone", Message: err.Error()}
	}
	if cfg.Sync.Enabled() && (cfg.Sync.DeviceID == "" || cfg.Sync.Secret == "") {
		return nil, &Error{Path: "sync", Message: "device_id and secret are required when server_url is set"}
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// FirstWeekday resolves WeekStart.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

// YAML renders c as a config file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
