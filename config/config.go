// Package config loads and validates the application configuration
// described in spec.md §6, using github.com/ilyakaznacheev/cleanenv the
// way the teacher's cmd/*/config.go files do: a flat struct with
// yaml/env/env-default tags, a file-or-environment load, and a
// post-load setDefaults/Validate pass for values that depend on other
// fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/denisvmedia/dedupfs/models"
)

// Config is the application container's configuration, read once at
// startup and passed by value/pointer into every component constructor
// (§9 "global mutable singletons" design note).
type Config struct {
	LibrariesRoot string `yaml:"libraries_root" env:"LIBRARIES_ROOT"`
	StateRoot     string `yaml:"state_root" env:"STATE_ROOT"`
	DatabaseURL   string `yaml:"database_url" env:"DATABASE_URL" env-default:""`
	ThumbsRoot    string `yaml:"thumbs_root" env:"THUMBS_ROOT" env-default:""`

	DryRun          bool `yaml:"dry_run" env:"DRY_RUN" env-default:"true"`
	AllowRealDelete bool `yaml:"allow_real_delete" env:"ALLOW_REAL_DELETE" env-default:"false"`

	DefaultPageSize           int `yaml:"default_page_size" env:"DEFAULT_PAGE_SIZE" env-default:"50"`
	MaxPageSize               int `yaml:"max_page_size" env:"MAX_PAGE_SIZE" env-default:"200"`
	DefaultDuplicatesPageSize int `yaml:"default_duplicates_page_size" env:"DEFAULT_DUPLICATES_PAGE_SIZE" env-default:"100"`
	MaxDuplicatesPageSize     int `yaml:"max_duplicates_page_size" env:"MAX_DUPLICATES_PAGE_SIZE" env-default:"1000"`

	DefaultHashAlgorithm string `yaml:"default_hash_algorithm" env:"DEFAULT_HASH_ALGORITHM" env-default:"blake3"`
	HashRetryBaseSeconds int    `yaml:"hash_retry_base_seconds" env:"HASH_RETRY_BASE_SECONDS" env-default:"5"`
	HashRetryMaxSeconds  int    `yaml:"hash_retry_max_seconds" env:"HASH_RETRY_MAX_SECONDS" env-default:"300"`

	ThumbnailQueueCapacity       int    `yaml:"thumbnail_queue_capacity" env:"THUMBNAIL_QUEUE_CAPACITY" env-default:"500"`
	ThumbnailImageConcurrency    int    `yaml:"thumbnail_image_concurrency" env:"THUMBNAIL_IMAGE_CONCURRENCY" env-default:"4"`
	ThumbnailVideoConcurrency    int    `yaml:"thumbnail_video_concurrency" env:"THUMBNAIL_VIDEO_CONCURRENCY" env-default:"1"`
	ThumbnailBackoffBaseSeconds  int    `yaml:"thumbnail_backoff_base_seconds" env:"THUMBNAIL_BACKOFF_BASE_SECONDS" env-default:"5"`
	ThumbnailBackoffMaxSeconds   int    `yaml:"thumbnail_backoff_max_seconds" env:"THUMBNAIL_BACKOFF_MAX_SECONDS" env-default:"300"`
	ThumbnailCleanupDelaySeconds int    `yaml:"thumbnail_cleanup_delay_seconds" env:"THUMBNAIL_CLEANUP_DELAY_SECONDS" env-default:"60"`
	ThumbnailDefaultFormat       string `yaml:"thumbnail_default_format" env:"THUMBNAIL_DEFAULT_FORMAT" env-default:"jpeg"`
	ThumbnailDefaultMaxDimension int    `yaml:"thumbnail_default_max_dimension" env:"THUMBNAIL_DEFAULT_MAX_DIMENSION" env-default:"512"`
	ThumbnailMaxMaxDimension     int    `yaml:"thumbnail_max_max_dimension" env:"THUMBNAIL_MAX_MAX_DIMENSION" env-default:"4096"`

	JobLockTTLSeconds int `yaml:"job_lock_ttl_seconds" env:"JOB_LOCK_TTL_SECONDS" env-default:"300"`

	WalDefaultMode        string `yaml:"wal_default_mode" env:"WAL_DEFAULT_MODE" env-default:"passive"`
	WalMinIntervalSeconds int    `yaml:"wal_min_interval_seconds" env:"WAL_MIN_INTERVAL_SECONDS" env-default:"300"`
	WalAllowTruncate      bool   `yaml:"wal_allow_truncate" env:"WAL_ALLOW_TRUNCATE" env-default:"false"`

	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" env-default:"dedupfs"`
}

// requiredLibrariesRoot is the only value spec.md §6 hard-codes rather
// than leaving operator-chosen.
const requiredLibrariesRoot = "/libraries"

// Load reads configFile (if present) then falls back to environment
// variables, following the teacher's cleanenv.ReadConfig-then-
// cleanenv.ReadEnv fallback chain (cmd/inventario/shared.ReadSection),
// then fills derived defaults and validates.
func Load(configFile string) (*Config, error) {
	c := &Config{}

	if configFile != "" {
		if err := cleanenv.ReadConfig(configFile, c); err != nil {
			if err := cleanenv.ReadEnv(c); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	} else if err := cleanenv.ReadEnv(c); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = "sqlite:" + filepath.Join(c.StateRoot, "dedupfs.db")
	}
	if c.ThumbsRoot == "" {
		c.ThumbsRoot = filepath.Join(c.StateRoot, "thumbs")
	}
}

// Validate checks the cross-field and path-safety constraints of §6.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.LibrariesRoot) || filepath.Clean(c.LibrariesRoot) != requiredLibrariesRoot {
		return fmt.Errorf("libraries_root must be the absolute path %q", requiredLibrariesRoot)
	}
	if !filepath.IsAbs(c.StateRoot) {
		return fmt.Errorf("state_root must be an absolute path")
	}
	if err := os.MkdirAll(c.StateRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create state_root: %w", err)
	}

	cleanState := filepath.Clean(c.StateRoot)
	cleanThumbs := filepath.Clean(c.ThumbsRoot)
	if cleanThumbs != cleanState && !strings.HasPrefix(cleanThumbs, cleanState+string(filepath.Separator)) {
		return fmt.Errorf("thumbs_root must resolve under state_root")
	}

	if c.AllowRealDelete && c.DryRun {
		return fmt.Errorf("allow_real_delete must be false when dry_run is true")
	}

	if c.DefaultPageSize < 1 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("default_page_size must be between 1 and max_page_size")
	}
	if c.DefaultDuplicatesPageSize < 1 || c.DefaultDuplicatesPageSize > c.MaxDuplicatesPageSize {
		return fmt.Errorf("default_duplicates_page_size must be between 1 and max_duplicates_page_size")
	}

	if !models.SupportedHashAlgorithms[c.DefaultHashAlgorithm] {
		return fmt.Errorf("default_hash_algorithm must be one of blake3, sha256")
	}
	if c.HashRetryMaxSeconds < c.HashRetryBaseSeconds {
		return fmt.Errorf("hash_retry_max_seconds must be >= hash_retry_base_seconds")
	}

	format := models.ThumbnailFormat(c.ThumbnailDefaultFormat)
	if !format.Valid() {
		return fmt.Errorf("thumbnail_default_format must be jpeg or webp")
	}
	if c.ThumbnailDefaultMaxDimension < 1 || c.ThumbnailDefaultMaxDimension > c.ThumbnailMaxMaxDimension {
		return fmt.Errorf("thumbnail_default_max_dimension must be between 1 and thumbnail_max_max_dimension")
	}

	mode := models.WalMode(c.WalDefaultMode)
	if !mode.Valid() {
		return fmt.Errorf("wal_default_mode must be one of passive, restart, truncate")
	}

	for _, raw := range []string{c.LibrariesRoot, c.StateRoot, c.ThumbsRoot, c.DatabaseURL} {
		if strings.Contains(raw, "~") || strings.Contains(raw, "$") {
			return fmt.Errorf("configured paths must not contain ~ or $")
		}
	}

	return nil
}
