package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/assetsync/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLockPath       = ".assetsync.lock"
	DefaultLockStaleAfter = 5 * time.Minute
	DefaultRegion         = "auto"
	DefaultCacheControl   = "public, max-age=31536000, immutable"

	DefaultSyncMaxWidth     = 800
	DefaultSyncQuality      = 75
	DefaultCompressMaxWidth = 1600
	DefaultCompressQuality  = 70
)

var (
	ErrIncompleteStore = errors.New("store config incomplete")
	ErrInvalidConfig   = errors.New("invalid config")
)

// Config is built once in main and handed to every component that needs it.
type Config struct {
	Root           string        `mapstructure:"root" yaml:"root"`
	Folders        []string      `mapstructure:"folders" yaml:"folders"`
	Exclude        []string      `mapstructure:"exclude" yaml:"exclude,omitempty"`
	LockPath       string        `mapstructure:"lock_path" yaml:"lock_path"`
	LockStaleAfter time.Duration `mapstructure:"lock_stale_after" yaml:"-"`
	CacheControl   string        `mapstructure:"cache_control" yaml:"cache_control"`
	DryRun         bool          `mapstructure:"dry_run" yaml:"dry_run"`
	LogFile        string        `mapstructure:"log_file" yaml:"log_file,omitempty"`
	Verbose        bool          `mapstructure:"verbose" yaml:"verbose"`
	Store          StoreConfig   `mapstructure:"store" yaml:"store"`
	Sync           ImageConfig   `mapstructure:"sync" yaml:"sync"`
	Compress       ImageConfig   `mapstructure:"compress" yaml:"compress"`
	Path           string        `mapstructure:"-" yaml:"-"`
}

type StoreConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	// UsePathStyle is required by most self-hosted S3 implementations (minio, garage)
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// ImageConfig controls the optimizer used by one command.
type ImageConfig struct {
	MaxWidth int `mapstructure:"max_width" yaml:"max_width"`
	Quality  int `mapstructure:"quality" yaml:"quality"`
}

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	if c.LockPath == "" {
		c.LockPath = DefaultLockPath
	}
	if c.LockStaleAfter == 0 {
		c.LockStaleAfter = DefaultLockStaleAfter
	}
	if c.CacheControl == "" {
		c.CacheControl = DefaultCacheControl
	}
	if c.Store.Region == "" {
		c.Store.Region = DefaultRegion
	}
	if c.Sync.MaxWidth == 0 {
		c.Sync.MaxWidth = DefaultSyncMaxWidth
	}
	if c.Sync.Quality == 0 {
		c.Sync.Quality = DefaultSyncQuality
	}
	if c.Compress.MaxWidth == 0 {
		c.Compress.MaxWidth = DefaultCompressMaxWidth
	}
	if c.Compress.Quality == 0 {
		c.Compress.Quality = DefaultCompressQuality
	}
}

// Validate checks everything the sync pipeline needs, store credentials included.
func (c *Config) Validate() error {
	if err := c.ValidateLocal(); err != nil {
		return err
	}
	if c.Root == "" {
		return fmt.Errorf("%w: root required", ErrInvalidConfig)
	}
	if len(c.Folders) == 0 {
		return fmt.Errorf("%w: at least one folder required", ErrInvalidConfig)
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	for i, folder := range c.Folders {
		clean, err := cleanFolder(folder)
		if err != nil {
			return err
		}
		if !seen.Add(clean) {
			return fmt.Errorf("%w: folder %q listed twice", ErrInvalidConfig, clean)
		}
		c.Folders[i] = clean
	}
	if c.LockStaleAfter < 0 {
		return fmt.Errorf("%w: lock_stale_after must be positive", ErrInvalidConfig)
	}
	return c.Store.Validate()
}

// ValidateLocal checks the subset used by the local compress command.
func (c *Config) ValidateLocal() error {
	if c.Root != "" {
		root, err := utils.ResolvePath(c.Root)
		if err != nil {
			return fmt.Errorf("%w: root: %w", ErrInvalidConfig, err)
		}
		c.Root = root
	}
	if err := c.Sync.validate("sync"); err != nil {
		return err
	}
	return c.Compress.validate("compress")
}

func (s *StoreConfig) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("%w: endpoint required", ErrIncompleteStore)
	}
	if u, err := url.Parse(s.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid endpoint URL %q", ErrInvalidConfig, s.Endpoint)
	}
	if s.Bucket == "" {
		return fmt.Errorf("%w: bucket required", ErrIncompleteStore)
	}
	if s.AccessKey == "" {
		return fmt.Errorf("%w: access_key required", ErrIncompleteStore)
	}
	if s.SecretKey == "" {
		return fmt.Errorf("%w: secret_key required", ErrIncompleteStore)
	}
	return nil
}

func (i ImageConfig) validate(name string) error {
	if i.MaxWidth <= 0 {
		return fmt.Errorf("%w: %s.max_width must be positive", ErrInvalidConfig, name)
	}
	if i.Quality < 1 || i.Quality > 100 {
		return fmt.Errorf("%w: %s.quality must be within 1..100", ErrInvalidConfig, name)
	}
	return nil
}

// cleanFolder turns a folder entry into a slash separated relative path.
func cleanFolder(folder string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(folder, "\\", "/"))
	clean = strings.Trim(clean, "/")
	if clean == "" || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: folder %q escapes root", ErrInvalidConfig, folder)
	}
	return clean, nil
}

// Render writes the config as yaml with secrets masked.
func (c Config) Render(w io.Writer) error {
	c.Store.SecretKey = utils.MaskSecret(c.Store.SecretKey)
	c.Store.AccessKey = utils.MaskSecret(c.Store.AccessKey)

	view := struct {
		Config         `yaml:",inline"`
		LockStaleAfter string `yaml:"lock_stale_after"`
	}{c, c.LockStaleAfter.String()}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
