// Command biscuitctl boots the simulated kernel, runs its standalone
// allocator/VM invariant checks, or reports build info. Grounded on
// SPEC_FULL.md's CLI section: a github.com/spf13/cobra command tree
// layered over internal/bootcfg's viper+pflag configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/j-gatsby/biscuit/internal/bootcfg"
	"github.com/j-gatsby/biscuit/internal/klog"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "biscuitctl",
		Short: "Boot and inspect the biscuit kernel simulation",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "boot config file (YAML)")

	root.AddCommand(newBootCmd())
	root.AddCommand(newFsckCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func loadConfig(flags *pflag.FlagSet) (bootcfg.Config, error) {
	cfg, err := bootcfg.Load(cfgFile, flags)
	if err != nil {
		return cfg, err
	}
	lvl := zap.NewAtomicLevel()
	if perr := lvl.UnmarshalText([]byte(cfg.LogLevel)); perr == nil {
		zcfg := zap.NewDevelopmentConfig()
		zcfg.Level = lvl
		if l, zerr := zcfg.Build(); zerr == nil {
			klog.Use(l)
		}
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
