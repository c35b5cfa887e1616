package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is the wire format of a content source.
type Format = string

var (
	JSON     = Format("json")
	RSS      = Format("rss")
	Telegram = Format("telegram")
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const baseCfgPath = "editorhub/config.toml"

type Config struct {
	Announcements   ContentConfig     `toml:"announcements" yaml:"announcements"`
	Changelogs      ContentConfig     `toml:"changelogs" yaml:"changelogs"`
	Fetch           FetchConfig       `toml:"fetch" yaml:"fetch"`
	Cache           CacheConfig       `toml:"cache" yaml:"cache"`
	Events          EventsConfig      `toml:"events" yaml:"events"`
	Client          ClientConfig      `toml:"client" yaml:"client"`
	Filters         map[string]Filter `toml:"filters" yaml:"filters"` // Named filters referenced by content sections
	Auth            AuthConfig        `toml:"auth" yaml:"auth"`
	Metrics         MetricsConfig     `toml:"metrics" yaml:"metrics"`
	Digest          DigestConfig      `toml:"digest" yaml:"digest"`
	OutputDirectory string            `toml:"output_directory" yaml:"output_directory"` // Directory for the rendered panel
	RefreshInterval string            `toml:"refresh_interval" yaml:"refresh_interval"` // Background refresh period in -serve mode
}

// ContentConfig lists the sources of one content kind.
type ContentConfig struct {
	Sources     []SourceConfig `toml:"sources" yaml:"sources"`
	FilterNames []string       `toml:"filters" yaml:"filters"` // Names of filters to apply (pipeline)
}

type SourceConfig struct {
	URL      string `toml:"url" yaml:"url"`
	Format   Format `toml:"format" yaml:"format"`     // json (default), rss or telegram
	Priority int    `toml:"priority" yaml:"priority"` // Priority for RSS/Telegram announcements (0 = default)
	Enabled  *bool  `toml:"enabled" yaml:"enabled"`   // Whether this source is active (defaults to true if not set)
}

type FetchConfig struct {
	Timeout           string `toml:"timeout" yaml:"timeout"`
	MaxRetries        int    `toml:"max_retries" yaml:"max_retries"`
	RetryDelay        string `toml:"retry_delay" yaml:"retry_delay"`
	RequireAllSources bool   `toml:"require_all_sources" yaml:"require_all_sources"`
	Deduplicate       bool   `toml:"deduplicate" yaml:"deduplicate"`
}

type CacheConfig struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled"`
	Backend   string `toml:"backend" yaml:"backend"` // file or sqlite
	Directory string `toml:"directory" yaml:"directory"`
	TTL       string `toml:"ttl" yaml:"ttl"`
}

type EventsConfig struct {
	SweepInterval string `toml:"sweep_interval" yaml:"sweep_interval"`
	HistorySize   int    `toml:"history_size" yaml:"history_size"`
	LoopQueueSize int    `toml:"loop_queue_size" yaml:"loop_queue_size"`
}

// ClientConfig describes the editor the content is served to.
type ClientConfig struct {
	Platform      string `toml:"platform" yaml:"platform"`
	EditorVersion string `toml:"editor_version" yaml:"editor_version"`
}

// Filter defines rules for filtering feed items
type Filter struct {
	MinLength         int      `toml:"min_length" yaml:"min_length"`                 // Minimum character count (0 = no limit)
	MinWords          int      `toml:"min_words" yaml:"min_words"`                   // Minimum word count (0 = no limit)
	ExcludePatterns   []string `toml:"exclude_patterns" yaml:"exclude_patterns"`     // Regex patterns to exclude
	RequireParagraphs bool     `toml:"require_paragraphs" yaml:"require_paragraphs"` // Must have multiple lines/paragraphs
	RequireTags       []string `toml:"require_tags" yaml:"require_tags"`             // At least one tag must match
	MaxAge            string   `toml:"max_age" yaml:"max_age"`                       // Drop items older than this
}

type AuthConfig struct {
	AuthorizeURL string `toml:"authorize_url" yaml:"authorize_url"`
	Port         int    `toml:"port" yaml:"port"` // Loopback port, 0 picks a free one
}

type MetricsConfig struct {
	ListenAddress string `toml:"listen_address" yaml:"listen_address"`
}

type DigestConfig struct {
	Agent string `toml:"agent" yaml:"agent"` // e.g. "summary", empty disables the digest
}

// IsEnabled returns true if the source is enabled (defaults to true if not set)
func (s SourceConfig) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// FormatOrDefault returns the source format, json when unset.
func (s SourceConfig) FormatOrDefault() Format {
	if s.Format == "" {
		return JSON
	}
	return strings.ToLower(s.Format)
}

// EnabledSources returns the active sources in configured order.
func (c ContentConfig) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

func Read(path string) (Config, error) {
	conf := Default()
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(dat, &conf)
	default:
		_, err = toml.Decode(string(dat), &conf)
	}
	if err != nil {
		return conf, fmt.Errorf("failed to decode config at %s with %w", path, err)
	}
	if err := conf.Validate(); err != nil {
		return conf, fmt.Errorf("invalid config at %s: %w", path, err)
	}
	return conf, nil
}

func Write(cfgPath string, cfg Config) error {
	var (
		blob []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(cfgPath)) {
	case ".yaml", ".yml":
		blob, err = yaml.Marshal(cfg)
	default:
		blob, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}
	basePath := path.Dir(cfgPath)
	err = os.MkdirAll(basePath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	err = os.WriteFile(cfgPath, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", cfgPath, err)
	}
	slog.Info("config written", "at", cfgPath)
	return nil
}

func Default() Config {
	var home = os.Getenv("HOME")
	var cacheBase = path.Join(home, ".cache/editorhub")
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		cacheBase = path.Join(xdgCache, "editorhub")
	}
	return Config{
		Fetch: FetchConfig{
			Timeout:     "10s",
			MaxRetries:  3,
			RetryDelay:  "2s",
			Deduplicate: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Backend:   BackendFile,
			Directory: cacheBase,
			TTL:       "1h",
		},
		Events: EventsConfig{
			SweepInterval: "30s",
			HistorySize:   64,
			LoopQueueSize: 1024,
		},
		Auth: AuthConfig{
			AuthorizeURL: "https://editorhub.dev/oauth/authorize",
		},
		OutputDirectory: path.Join(home, "editorhub"),
		RefreshInterval: "15m",
	}
}

// Validate checks durations and enumerations.
func (c Config) Validate() error {
	for name, value := range map[string]string{
		"fetch.timeout":         c.Fetch.Timeout,
		"fetch.retry_delay":     c.Fetch.RetryDelay,
		"cache.ttl":             c.Cache.TTL,
		"events.sweep_interval": c.Events.SweepInterval,
		"refresh_interval":      c.RefreshInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative, got %d", c.Fetch.MaxRetries)
	}
	switch c.Cache.Backend {
	case "", BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	for _, section := range []ContentConfig{c.Announcements, c.Changelogs} {
		for _, s := range section.Sources {
			switch s.FormatOrDefault() {
			case JSON, RSS, Telegram:
			default:
				return fmt.Errorf("unknown source format %q for %s", s.Format, s.URL)
			}
		}
		for _, name := range section.FilterNames {
			if _, ok := c.Filters[name]; !ok {
				slog.Warn("filter referenced but not defined", "filter", name)
			}
		}
	}
	return nil
}

// Duration parses value, falling back to def when empty or invalid.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration, using default", "value", value, "default", def)
		return def
	}
	return d
}

func DefaultPath() string {
	var xdgHome = os.Getenv("XDG_CONFIG_HOME")
	if xdgHome != "" {
		return path.Join(xdgHome, baseCfgPath)
	}

	var home = os.Getenv("HOME")
	if home != "" {
		return path.Join(home, ".config", baseCfgPath)
	}

	panic("unclear where to search for the config fie")
}
