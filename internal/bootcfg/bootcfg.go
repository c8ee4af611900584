// Package bootcfg loads the kernel's boot-time configuration: how much
// simulated physical memory to reserve, how many virtual CPUs to run, how
// large the process table is, and where the disk image lives. Values layer
// in the usual order: defaults, then a YAML boot file, then environment
// variables, then command-line flags — the same layering the rest of the
// retrieved corpus uses viper+pflag for.
package bootcfg

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every tunable the kernel needs before it can call kinit1.
type Config struct {
	PhysTopMB   int    `mapstructure:"phystop_mb"`
	NCPU        int    `mapstructure:"ncpu"`
	NProc       int    `mapstructure:"nproc"`
	DiskImage   string `mapstructure:"disk_image"`
	DiskBlocks  int    `mapstructure:"disk_blocks"`
	LogLevel    string `mapstructure:"log_level"`
}

// Default returns the configuration used when no boot file or flags are
// supplied — enough to run the end-to-end scenarios in spec.md §8 with
// PHYSTOP = 16 MiB.
func Default() Config {
	return Config{
		PhysTopMB:  16,
		NCPU:       2,
		NProc:      64,
		DiskImage:  "biscuit.img",
		DiskBlocks: 1024,
		LogLevel:   "info",
	}
}

// Load reads boot configuration from cfgFile (if non-empty), environment
// variables prefixed BISCUIT_, and finally flags, in increasing priority.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	cfg := Default()
	v.SetDefault("phystop_mb", cfg.PhysTopMB)
	v.SetDefault("ncpu", cfg.NCPU)
	v.SetDefault("nproc", cfg.NProc)
	v.SetDefault("disk_image", cfg.DiskImage)
	v.SetDefault("disk_blocks", cfg.DiskBlocks)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetEnvPrefix("biscuit")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("bootcfg: reading %s: %w", cfgFile, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, fmt.Errorf("bootcfg: binding flags: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("bootcfg: unmarshal: %w", err)
	}
	if cfg.NCPU < 1 {
		return cfg, fmt.Errorf("bootcfg: ncpu must be >= 1")
	}
	if cfg.NProc < 2 {
		return cfg, fmt.Errorf("bootcfg: nproc must be >= 2")
	}
	return cfg, nil
}
