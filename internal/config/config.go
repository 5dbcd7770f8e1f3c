package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for grs.
type Config struct {
	BaseDir   string        `toml:"base_dir"`
	DataDir   string        `toml:"data_dir"`   // where local mirrors are cloned
	StorePath string        `toml:"store_path"` // the repository record file
	LogDir    string        `toml:"log_dir"`
	Workers   int           `toml:"workers"` // 0 = number of CPUs
	GitHub    GitHubConfig  `toml:"github"`
	Git       GitConfig     `toml:"git"`
	Archive   ArchiveConfig `toml:"archive"`
}

// GitHubConfig holds remote provider settings.
type GitHubConfig struct {
	Token    string `toml:"token"`
	CacheTTL string `toml:"cache_ttl"` // duration string, e.g. "5m"
}

// GitConfig holds subprocess timeouts as duration strings. Empty
// values select the defaults ("10m" clone, "5m" pull).
type GitConfig struct {
	CloneTimeout string `toml:"clone_timeout"`
	PullTimeout  string `toml:"pull_timeout"`
}

// ArchiveConfig holds snapshot settings.
type ArchiveConfig struct {
	// Async dispatches archive creation to the background so a sync
	// call does not wait for compression.
	Async bool `toml:"async"`
	// Ignore lists extra exclusion patterns applied when hashing and
	// archiving mirrors (VCS internals are always excluded).
	Ignore []string `toml:"ignore"`
}

// CacheTTLDuration parses the configured cache TTL; zero selects the
// resolver's default.
func (c GitHubConfig) CacheTTLDuration() time.Duration { return parseDuration(c.CacheTTL) }

// CloneTimeoutDuration parses the clone timeout; zero selects the default.
func (c GitConfig) CloneTimeoutDuration() time.Duration { return parseDuration(c.CloneTimeout) }

// PullTimeoutDuration parses the pull timeout; zero selects the default.
func (c GitConfig) PullTimeoutDuration() time.Duration { return parseDuration(c.PullTimeout) }

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// NewConfig creates a Config with default paths under baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:   baseDir,
		DataDir:   filepath.Join(baseDir, "data"),
		StorePath: filepath.Join(baseDir, "cloned_repos.json"),
		LogDir:    filepath.Join(baseDir, "log"),
		Archive:   ArchiveConfig{Async: true},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile writes a Config to the specified file path, creating the
// parent directory if needed.
func WriteToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. Fails if one already exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := WriteToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
