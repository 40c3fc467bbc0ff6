package config_test

import (
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/denisvmedia/dedupfs/config"
)

func validConfig(c *qt.C) config.Config {
	stateRoot := c.TempDir()
	return config.Config{
		LibrariesRoot:             "/libraries",
		StateRoot:                 stateRoot,
		ThumbsRoot:                filepath.Join(stateRoot, "thumbs"),
		DatabaseURL:               filepath.Join(stateRoot, "dedupfs.db"),
		DryRun:                    true,
		AllowRealDelete:           false,
		DefaultPageSize:           50,
		MaxPageSize:               200,
		DefaultDuplicatesPageSize: 100,
		MaxDuplicatesPageSize:     1000,
		DefaultHashAlgorithm:      "blake3",
		HashRetryBaseSeconds:      5,
		HashRetryMaxSeconds:       300,
		ThumbnailDefaultFormat:       "jpeg",
		ThumbnailDefaultMaxDimension: 512,
		ThumbnailMaxMaxDimension:     4096,
		WalDefaultMode:               "passive",
	}
}

func TestValidate_AcceptsBaseline(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	c.Assert(cfg.Validate(), qt.IsNil)
}

func TestValidate_RejectsLibrariesRootOtherThanLibraries(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.LibrariesRoot = "/srv/libraries"
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_RejectsRelativeStateRoot(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.StateRoot = "relative/state"
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_RejectsThumbsRootOutsideStateRoot(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.ThumbsRoot = c.TempDir()
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_RejectsAllowRealDeleteWithDryRun(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.DryRun = true
	cfg.AllowRealDelete = true
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_AllowsRealDeleteWithoutDryRun(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.DryRun = false
	cfg.AllowRealDelete = true
	c.Assert(cfg.Validate(), qt.IsNil)
}

func TestValidate_RejectsPageSizeOutOfRange(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.DefaultPageSize = 0
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))

	cfg = validConfig(c)
	cfg.DefaultPageSize = cfg.MaxPageSize + 1
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_RejectsUnsupportedHashAlgorithm(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.DefaultHashAlgorithm = "md5"
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_RejectsHashRetryMaxBelowBase(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.HashRetryBaseSeconds = 100
	cfg.HashRetryMaxSeconds = 10
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_RejectsUnsupportedThumbnailFormat(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.ThumbnailDefaultFormat = "png"
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_RejectsThumbnailMaxDimensionOutOfRange(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.ThumbnailDefaultMaxDimension = 0
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))

	cfg = validConfig(c)
	cfg.ThumbnailDefaultMaxDimension = cfg.ThumbnailMaxMaxDimension + 1
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_RejectsUnsupportedWalMode(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.WalDefaultMode = "checkpoint"
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}

func TestValidate_RejectsHomeExpansionMarkersInPaths(t *testing.T) {
	c := qt.New(t)
	cfg := validConfig(c)
	cfg.DatabaseURL = "~/dedupfs.db"
	c.Assert(cfg.Validate(), qt.Not(qt.IsNil))
}
