package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "/etc/seedwarden/config.toml"

type Config struct {
	DownloadDir         string   `toml:"download_dir" yaml:"download_dir"`
	FreeSpaceThreshold  int      `toml:"free_space_threshold" yaml:"free_space_threshold"`   // percent, negative = disabled
	MaxSeedTime         int64    `toml:"max_seed_time" yaml:"max_seed_time"`                 // seconds, negative = disabled
	MaxAnnounceInterval int64    `toml:"max_announce_interval" yaml:"max_announce_interval"` // minutes, 0 = disabled
	CopyTo              string   `toml:"copy_to" yaml:"copy_to"`
	TVShowsDir          string   `toml:"tv_shows_dir" yaml:"tv_shows_dir"`
	TVShows             []string `toml:"tv_shows" yaml:"tv_shows"`
	MoveCopiedTo        string   `toml:"move_copied_to" yaml:"move_copied_to"`
	Umask               string   `toml:"umask" yaml:"umask"`
	DiskUsageSource     string   `toml:"disk_usage_source" yaml:"disk_usage_source"`

	RPCURL       string  `toml:"rpc_url" yaml:"rpc_url"`
	RPCUsername  string  `toml:"rpc_username" yaml:"rpc_username"`
	RPCPassword  string  `toml:"rpc_password" yaml:"rpc_password"`
	RPCTimeout   int64   `toml:"rpc_timeout" yaml:"rpc_timeout"`       // seconds
	RPCRateLimit float64 `toml:"rpc_rate_limit" yaml:"rpc_rate_limit"` // requests per second, 0 = unlimited

	MongoURI        string `toml:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase   string `toml:"mongo_database" yaml:"mongo_database"`
	MongoCollection string `toml:"mongo_collection" yaml:"mongo_collection"`

	LockFile        string `toml:"lock_file" yaml:"lock_file"`
	MetricsTextfile string `toml:"metrics_textfile" yaml:"metrics_textfile"`
	LogLevel        string `toml:"log_level" yaml:"log_level"`
	LogFormat       string `toml:"log_format" yaml:"log_format"`

	// UnknownKeys lists keys of the file that no field consumed.
	UnknownKeys []string `toml:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		FreeSpaceThreshold:  -1,
		MaxSeedTime:         -1,
		MaxAnnounceInterval: 0,
		DiskUsageSource:     "df",
		RPCURL:              "http://localhost:9091/transmission/rpc",
		RPCTimeout:          30,
		RPCRateLimit:        10,
		MongoURI:            "mongodb://localhost:27017",
		MongoDatabase:       "seedwarden",
		MongoCollection:     "torrents",
		LockFile:            filepath.Join(os.TempDir(), "seedwarden.lock"),
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Load reads the config file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file not found: %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		for _, key := range meta.Undecoded() {
			cfg.UnknownKeys = append(cfg.UnknownKeys, key.String())
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DownloadDir = getEnv("SEEDWARDEN_DOWNLOAD_DIR", c.DownloadDir)
	c.FreeSpaceThreshold = int(getEnvInt64("SEEDWARDEN_FREE_SPACE_THRESHOLD", int64(c.FreeSpaceThreshold)))
	c.MaxSeedTime = getEnvInt64("SEEDWARDEN_MAX_SEED_TIME", c.MaxSeedTime)
	c.MaxAnnounceInterval = getEnvInt64("SEEDWARDEN_MAX_ANNOUNCE_INTERVAL", c.MaxAnnounceInterval)
	c.CopyTo = getEnv("SEEDWARDEN_COPY_TO", c.CopyTo)
	c.TVShowsDir = getEnv("SEEDWARDEN_TV_SHOWS_DIR", c.TVShowsDir)
	c.MoveCopiedTo = getEnv("SEEDWARDEN_MOVE_COPIED_TO", c.MoveCopiedTo)
	c.Umask = getEnv("SEEDWARDEN_UMASK", c.Umask)
	c.DiskUsageSource = getEnv("SEEDWARDEN_DISK_USAGE_SOURCE", c.DiskUsageSource)
	c.RPCURL = getEnv("SEEDWARDEN_RPC_URL", c.RPCURL)
	c.RPCUsername = getEnv("SEEDWARDEN_RPC_USERNAME", c.RPCUsername)
	c.RPCPassword = getEnv("SEEDWARDEN_RPC_PASSWORD", c.RPCPassword)
	c.RPCTimeout = getEnvInt64("SEEDWARDEN_RPC_TIMEOUT", c.RPCTimeout)
	c.RPCRateLimit = getEnvFloat("SEEDWARDEN_RPC_RATE_LIMIT", c.RPCRateLimit)
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGO_DB", c.MongoDatabase)
	c.MongoCollection = getEnv("MONGO_COLLECTION", c.MongoCollection)
	c.LockFile = getEnv("SEEDWARDEN_LOCK_FILE", c.LockFile)
	c.MetricsTextfile = getEnv("SEEDWARDEN_METRICS_TEXTFILE", c.MetricsTextfile)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.DiskUsageSource = strings.ToLower(strings.TrimSpace(c.DiskUsageSource))
	for _, dir := range []*string{&c.DownloadDir, &c.CopyTo, &c.TVShowsDir, &c.MoveCopiedTo} {
		*dir = strings.TrimSpace(*dir)
	}
}

func (c Config) Validate() error {
	if c.DownloadDir == "" {
		return errors.New("download_dir is required")
	}
	if c.FreeSpaceThreshold > 100 {
		return fmt.Errorf("free_space_threshold must be at most 100, got %d", c.FreeSpaceThreshold)
	}
	if c.MaxAnnounceInterval < 0 {
		return fmt.Errorf("max_announce_interval must not be negative, got %d", c.MaxAnnounceInterval)
	}
	if c.MoveCopiedTo != "" && c.CopyTo == "" {
		return errors.New("move_copied_to requires copy_to")
	}
	if len(c.TVShows) > 0 && c.TVShowsDir == "" {
		return errors.New("tv_shows requires tv_shows_dir")
	}
	if _, _, err := c.UmaskValue(); err != nil {
		return err
	}
	switch c.DiskUsageSource {
	case "df", "statfs":
	default:
		return fmt.Errorf("disk_usage_source must be df or statfs, got %q", c.DiskUsageSource)
	}
	if err := validateURL(c.RPCURL, "rpc_url"); err != nil {
		return err
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("rpc_timeout must be positive, got %d", c.RPCTimeout)
	}
	if c.RPCRateLimit < 0 {
		return fmt.Errorf("rpc_rate_limit must not be negative, got %v", c.RPCRateLimit)
	}
	if c.MongoURI == "" || c.MongoDatabase == "" || c.MongoCollection == "" {
		return errors.New("mongo_uri, mongo_database and mongo_collection are required")
	}
	if c.LockFile == "" {
		return errors.New("lock_file is required")
	}
	return nil
}

// MaxSeedDuration returns a negative duration when retirement is disabled.
func (c Config) MaxSeedDuration() time.Duration {
	if c.MaxSeedTime < 0 {
		return -1
	}
	return time.Duration(c.MaxSeedTime) * time.Second
}

func (c Config) AnnounceInterval() time.Duration {
	return time.Duration(c.MaxAnnounceInterval) * time.Minute
}

func (c Config) RPCTimeoutDuration() time.Duration {
	return time.Duration(c.RPCTimeout) * time.Second
}

// UmaskValue parses the octal umask. ok is false when none is configured.
func (c Config) UmaskValue() (mask int, ok bool, err error) {
	raw := strings.TrimSpace(c.Umask)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(raw, "0o"), 8, 32)
	if err != nil || v > 0o777 {
		return 0, false, fmt.Errorf("umask must be an octal value up to 0777, got %q", c.Umask)
	}
	return int(v), true, nil
}

func validateURL(raw, field string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
