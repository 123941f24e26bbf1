// Package config loads mount and stress-harness defaults, allowing the
// (out of scope) CLI layer or a test harness to override them via
// environment variables instead of a bespoke flag parser.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// MountConfig controls how the façade creates or opens a disk image.
type MountConfig struct {
	DiskPath   string `envconfig:"DISK_PATH" default:"simfs.img"`
	CreateSize int    `envconfig:"CREATE_SIZE_MB" default:"10"`
}

// LoadMountConfig returns MountConfig populated with defaults, then
// overridden from SIMFS_-prefixed environment variables.
func LoadMountConfig() (MountConfig, error) {
	var c MountConfig
	if err := envconfig.Process("simfs", &c); err != nil {
		return MountConfig{}, err
	}
	return c, nil
}

// StressConfig mirrors the StressHarness configuration table in spec §4.8.
type StressConfig struct {
	Duration         time.Duration `envconfig:"STRESS_DURATION" default:"12h"`
	FileCount        int           `envconfig:"STRESS_FILE_COUNT" default:"50"`
	ThreadCount      int           `envconfig:"STRESS_THREAD_COUNT" default:"8"`
	WriteSize        int           `envconfig:"STRESS_WRITE_SIZE" default:"4096"`
	MonitorInterval  time.Duration `envconfig:"STRESS_MONITOR_INTERVAL" default:"30s"`
	WorkspacePath    string        `envconfig:"STRESS_WORKSPACE_PATH" default:"/stress_suite"`
	CleanupAfter     bool          `envconfig:"STRESS_CLEANUP_AFTER" default:"false"`
	BucketCount      int           `envconfig:"STRESS_BUCKET_COUNT" default:"0"`
}

// LoadStressConfig returns StressConfig populated with the spec's defaults,
// then overridden from SIMFS_-prefixed environment variables.
func LoadStressConfig() (StressConfig, error) {
	var c StressConfig
	if err := envconfig.Process("simfs", &c); err != nil {
		return StressConfig{}, err
	}
	return c, nil
}
