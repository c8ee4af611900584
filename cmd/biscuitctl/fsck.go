package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/j-gatsby/biscuit/internal/selftest"
)

func newFsckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fsck",
		Short: "Run the allocator/VM invariant checks standalone",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range selftest.Run(cfg.PhysTopMB) {
				if r.Err != nil {
					failed++
					fmt.Printf("FAIL %s: %v\n", r.Name, r.Err)
					continue
				}
				fmt.Printf("ok   %s\n", r.Name)
			}
			if failed > 0 {
				return fmt.Errorf("fsck: %d check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().Int("phystop_mb", 0, "override configured physical memory size (MiB)")
	return cmd
}
