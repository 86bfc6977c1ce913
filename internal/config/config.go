// Package config assembles the run configuration from defaults, an optional
// YAML file, DIST_S1_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/eunmann/dist-s1-trigger/pkg/product"
	"github.com/eunmann/dist-s1-trigger/pkg/s3fetch"
	"github.com/eunmann/dist-s1-trigger/pkg/sequence"
	"github.com/eunmann/dist-s1-trigger/pkg/trigger"
)

// DefaultGraceMinutes is two days.
const DefaultGraceMinutes = 2880

// Environment variables.
const (
	EnvBurstDB      = "DIST_S1_BURST_DB"
	EnvCacheDir     = "DIST_S1_CACHE_DIR"
	EnvGraceMinutes = "DIST_S1_GRACE_MINUTES"
	EnvLedgerPath   = "DIST_S1_LEDGER_PATH"
	EnvDatabaseURL  = "DIST_S1_DATABASE_URL"
	EnvAWSRegion    = "DIST_S1_AWS_REGION"
	EnvS3Endpoint   = "DIST_S1_S3_ENDPOINT"
)

// S3 configures reference table downloads.
type S3 struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	Concurrency  int    `yaml:"concurrency"`
}

// Config is the complete run configuration.
type Config struct {
	// BurstDB lists the reference table parts, local paths or s3:// URIs.
	BurstDB  []string `yaml:"burst_db"`
	CacheDir string   `yaml:"cache_dir"`

	GraceMinutes       int    `yaml:"grace_minutes"`
	CompleteBurstsOnly bool   `yaml:"complete_bursts_only"`
	TrackTiles         bool   `yaml:"track_tiles"`
	DedupeToOneProduct bool   `yaml:"dedupe_to_one_product"`
	ForcedProduct      string `yaml:"forced_product"`
	MaxSearchSteps     int    `yaml:"max_search_steps"`

	// LedgerPath selects the SQLite ledger, DatabaseURL the PostgreSQL one.
	LedgerPath  string `yaml:"ledger_path"`
	DatabaseURL string `yaml:"database_url"`

	MetricsTextfile string `yaml:"metrics_textfile"`

	S3 S3 `yaml:"s3"`

	Debug bool `yaml:"debug"`
	Human bool `yaml:"human"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	c := Config{
		GraceMinutes:       DefaultGraceMinutes,
		CompleteBurstsOnly: true,
		TrackTiles:         true,
		MaxSearchSteps:     sequence.DefaultMaxSteps,
		S3: S3{
			Concurrency: 4,
		},
	}
	if dir, err := os.UserCacheDir(); err == nil {
		c.CacheDir = filepath.Join(dir, "dist-s1-trigger")
	}
	return c
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := c.LoadEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadFile overlays the fields present in a YAML file. Unknown keys are errors.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnv overlays DIST_S1_* variables.
func (c *Config) LoadEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBurstDB); ok && v != "" {
		c.BurstDB = splitList(v)
	}
	if v, ok := lookup(EnvCacheDir); ok && v != "" {
		c.CacheDir = v
	}
	if v, ok := lookup(EnvGraceMinutes); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvGraceMinutes, v, err)
		}
		c.GraceMinutes = n
	}
	if v, ok := lookup(EnvLedgerPath); ok && v != "" {
		c.LedgerPath = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.DatabaseURL = v
	}
	if v, ok := lookup(EnvAWSRegion); ok && v != "" {
		c.S3.Region = v
	}
	if v, ok := lookup(EnvS3Endpoint); ok && v != "" {
		c.S3.Endpoint = v
	}
	return nil
}

// RegisterFlags binds Config fields to the given FlagSet with the current
// values as defaults.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(&c.BurstDB, "burst-db", c.BurstDB, "burst reference table parts: local CSV/CSV.gz/Parquet paths or s3:// URIs")
	fs.StringVar(&c.CacheDir, "cache-dir", c.CacheDir, "directory for the catalog cache and downloaded reference tables (empty disables caching)")
	fs.IntVar(&c.GraceMinutes, "grace-minutes", c.GraceMinutes, "minutes an incomplete product waits for missing bursts (0 triggers immediately)")
	fs.BoolVar(&c.CompleteBurstsOnly, "complete-bursts-only", c.CompleteBurstsOnly, "only trigger complete products, or incomplete ones past the grace period")
	fs.BoolVar(&c.TrackTiles, "track-tiles", c.TrackTiles, "report tiles that received no granules")
	fs.BoolVar(&c.DedupeToOneProduct, "dedupe-to-one-product", c.DedupeToOneProduct, "assign each granule to its first product only")
	fs.StringVar(&c.ForcedProduct, "forced-product", c.ForcedProduct, "assign every granule to this product id, e.g. 31RGQ_2")
	fs.IntVar(&c.MaxSearchSteps, "max-search-steps", c.MaxSearchSteps, "bound on the previous-product search")
	fs.StringVar(&c.LedgerPath, "ledger", c.LedgerPath, "SQLite closed-batch ledger path")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "PostgreSQL closed-batch ledger URL")
	fs.StringVar(&c.MetricsTextfile, "metrics-textfile", c.MetricsTextfile, "write Prometheus metrics to this node-exporter textfile")
	fs.StringVar(&c.S3.Region, "s3-region", c.S3.Region, "AWS region for s3:// reference tables")
	fs.StringVar(&c.S3.Endpoint, "s3-endpoint", c.S3.Endpoint, "custom S3 endpoint URL")
	fs.BoolVar(&c.S3.UsePathStyle, "s3-path-style", c.S3.UsePathStyle, "use path-style S3 addressing")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging")
	fs.BoolVar(&c.Human, "human", c.Human, "human-friendly console logs")
}

// ApplyFlags copies into c every field whose flag was set on fs. flags must
// be the Config that fs was registered against.
func (c *Config) ApplyFlags(fs *pflag.FlagSet, flags *Config) {
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := flagFields[f.Name]; ok {
			apply(c, flags)
		}
	})
}

var flagFields = map[string]func(dst, src *Config){
	"burst-db":              func(d, s *Config) { d.BurstDB = s.BurstDB },
	"cache-dir":             func(d, s *Config) { d.CacheDir = s.CacheDir },
	"grace-minutes":         func(d, s *Config) { d.GraceMinutes = s.GraceMinutes },
	"complete-bursts-only":  func(d, s *Config) { d.CompleteBurstsOnly = s.CompleteBurstsOnly },
	"track-tiles":           func(d, s *Config) { d.TrackTiles = s.TrackTiles },
	"dedupe-to-one-product": func(d, s *Config) { d.DedupeToOneProduct = s.DedupeToOneProduct },
	"forced-product":        func(d, s *Config) { d.ForcedProduct = s.ForcedProduct },
	"max-search-steps":      func(d, s *Config) { d.MaxSearchSteps = s.MaxSearchSteps },
	"ledger":                func(d, s *Config) { d.LedgerPath = s.LedgerPath },
	"database-url":          func(d, s *Config) { d.DatabaseURL = s.DatabaseURL },
	"metrics-textfile":      func(d, s *Config) { d.MetricsTextfile = s.MetricsTextfile },
	"s3-region":             func(d, s *Config) { d.S3.Region = s.S3.Region },
	"s3-endpoint":           func(d, s *Config) { d.S3.Endpoint = s.S3.Endpoint },
	"s3-path-style":         func(d, s *Config) { d.S3.UsePathStyle = s.S3.UsePathStyle },
	"debug":                 func(d, s *Config) { d.Debug = s.Debug },
	"human":                 func(d, s *Config) { d.Human = s.Human },
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if len(c.BurstDB) == 0 {
		errs = append(errs, fmt.Errorf("burst_db is required (flag --burst-db or %s)", EnvBurstDB))
	}
	for _, src := range c.BurstDB {
		if !s3fetch.IsS3URI(src) {
			continue
		}
		_, key, err := s3fetch.ParseS3URI(src)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid burst_db %q: %w", src, err))
		} else if key == "" {
			errs = append(errs, fmt.Errorf("invalid burst_db %q: missing object key", src))
		}
	}

	if c.GraceMinutes < 0 {
		errs = append(errs, fmt.Errorf("invalid grace_minutes %d (must be >= 0)", c.GraceMinutes))
	}
	if c.MaxSearchSteps <= 0 {
		errs = append(errs, fmt.Errorf("invalid max_search_steps %d (must be > 0)", c.MaxSearchSteps))
	}
	if c.ForcedProduct != "" {
		if _, err := product.ParseID(c.ForcedProduct); err != nil {
			errs = append(errs, fmt.Errorf("invalid forced_product: %w", err))
		}
	}

	if c.LedgerPath != "" && c.DatabaseURL != "" {
		errs = append(errs, errors.New("ledger_path and database_url are mutually exclusive"))
	}
	if c.S3.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("invalid s3.concurrency %d (must be > 0)", c.S3.Concurrency))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// GracePeriod returns GraceMinutes as a duration.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GraceMinutes) * time.Minute
}

// Trigger returns the survey run configuration.
func (c *Config) Trigger() (trigger.Config, error) {
	tc := trigger.Config{
		CompleteBurstsOnly: c.CompleteBurstsOnly,
		GracePeriod:        c.GracePeriod(),
		TrackTiles:         c.TrackTiles,
		DedupeToOneProduct: c.DedupeToOneProduct,
	}
	if c.ForcedProduct != "" {
		id, err := product.ParseID(c.ForcedProduct)
		if err != nil {
			return trigger.Config{}, err
		}
		tc.ForcedProduct = &id
	}
	return tc, nil
}

// ClientOptions returns the S3 client options.
func (c *Config) ClientOptions() s3fetch.ClientOptions {
	return s3fetch.ClientOptions{
		Region:       c.S3.Region,
		Endpoint:     c.S3.Endpoint,
		UsePathStyle: c.S3.UsePathStyle,
	}
}

// NeedsS3 reports whether any reference table part lives in S3.
func (c *Config) NeedsS3() bool {
	for _, src := range c.BurstDB {
		if s3fetch.IsS3URI(src) {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
