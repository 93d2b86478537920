// Package config holds fgnhgctl's own service configuration plus the
// config-delta ingest path (SPEC_FULL.md §6, §10): the yaml-tagged,
// flag-registering Config struct follows cmd/tempo/app.Config's
// RegisterFlagsAndApplyDefaults convention; ingest.go turns FG_NHG/
// FG_NHG_PREFIX/FG_NHG_MEMBER deltas into internal/store mutations the way
// doTaskFgNhg/doTaskFgNhg_prefix/doTaskFgNhg_member do in the original.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Config is the root configuration for the fgnhgctl service.
type Config struct {
	// StateDBPath is the JSON file the filedb-backed store.StateDB
	// persists to. Empty means use an in-memory store.StateDB instead
	// (no warm-restart persistence across process restarts).
	StateDBPath string `yaml:"state_db_path,omitempty"`

	// DefaultBucketCount is a registered, config-level bucket count. FG_NHG
	// ingest does not apply it: an entry that omits bucket_size (or gives
	// 0) is rejected, matching the original's "bucket_size == 0 is an
	// error" rule.
	DefaultBucketCount int `yaml:"default_bucket_count,omitempty"`

	// RetryInterval is how often the controller drains its retry queue
	// of ErrTransient failures (SPEC_FULL.md §7).
	RetryInterval time.Duration `yaml:"retry_interval,omitempty"`

	// HTTPListenAddress serves the status/debug handler.
	HTTPListenAddress string `yaml:"http_listen_address,omitempty"`

	Simulated bool `yaml:"simulated,omitempty"`
}

// RegisterFlagsAndApplyDefaults registers f's flags under prefix and sets
// defaults, mirroring cmd/tempo/app.Config.RegisterFlagsAndApplyDefaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.DefaultBucketCount = 120
	c.RetryInterval = 5 * time.Second
	c.HTTPListenAddress = ":9480"

	f.StringVar(&c.StateDBPath, prefixFlag(prefix, "state-db-path"), "", "Path to the warm-restart state-DB checkpoint file. Empty disables persistence across restarts.")
	f.IntVar(&c.DefaultBucketCount, prefixFlag(prefix, "default-bucket-count"), c.DefaultBucketCount, "Default bucket count. Not applied by FG_NHG ingest: entries that omit bucket_size are rejected.")
	f.DurationVar(&c.RetryInterval, prefixFlag(prefix, "retry-interval"), c.RetryInterval, "Interval between drains of the transient-failure retry queue.")
	f.StringVar(&c.HTTPListenAddress, prefixFlag(prefix, "http-listen-address"), c.HTTPListenAddress, "Address the status/debug HTTP handler listens on.")
	f.BoolVar(&c.Simulated, prefixFlag(prefix, "simulated"), false, "Make the in-memory ASIC report each group's configured bucket count verbatim as its real size.")
}

func prefixFlag(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// ConfigWarning is a non-fatal configuration issue surfaced at startup,
// grounded on the teacher's ValidateConfig-returns-error pattern but
// widened to a list since several independent knobs can each be
// questionable without any one of them being fatal.
type ConfigWarning struct {
	Field   string
	Message string
}

func (w ConfigWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// CheckConfig reports configuration combinations that are legal but
// probably not what the operator meant.
func (c *Config) CheckConfig() []ConfigWarning {
	var warnings []ConfigWarning
	if c.DefaultBucketCount <= 0 {
		warnings = append(warnings, ConfigWarning{
			Field:   "default_bucket_count",
			Message: "should be positive",
		})
	}
	if c.RetryInterval <= 0 {
		warnings = append(warnings, ConfigWarning{
			Field:   "retry_interval",
			Message: "must be positive; transient failures will never be retried",
		})
	}
	if c.StateDBPath == "" {
		warnings = append(warnings, ConfigWarning{
			Field:   "state_db_path",
			Message: "unset; warm-restart checkpoints will not survive a process restart",
		})
	}
	return warnings
}
