// Command vfdctl is a small operator CLI around the vfd package: it
// loads a config.Config from YAML and drives one-shot operations
// against the VFD layer, the way the teacher ships a cobra-based
// command per operation under cmd/.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vfdstore/vfd/config"
	_ "github.com/vfdstore/vfd/remote/hdfsdriver"
	_ "github.com/vfdstore/vfd/remote/sftpdriver"
	"github.com/vfdstore/vfd/vfd"
	"github.com/vfdstore/vfd/vfdlog"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "vfdctl",
		Short: "Inspect and exercise the virtual file descriptor layer",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults built in if omitted)")

	root.AddCommand(sweepCmd(), statCmd(), catCmd(), lsCmd())

	if err := root.Execute(); err != nil {
		vfdlog.Errorf(nil, "%v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove orphaned temp files left under the configured temp root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := vfd.RemovePgTempFiles(cfg.TempRoot); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swept orphaned temp files under %s\n", cfg.TempRoot)
			return nil
		},
	}
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Print the VFD manager's current budget and occupancy counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := vfd.NewManager(cfg)
			if err != nil {
				return err
			}
			stats := struct {
				NFile           int   `json:"nfile"`
				NAllocatedDescs int   `json:"n_allocated_descs"`
				MaxSafeFds      int   `json:"max_safe_fds"`
				Evictions       int64 `json:"evictions"`
				PoolEntries     int   `json:"pool_entries"`
			}{
				NFile:           mgr.NFile(),
				NAllocatedDescs: mgr.NAllocatedDescs(),
				MaxSafeFds:      mgr.MaxSafeFds(),
				Evictions:       mgr.Evictions(),
				PoolEntries:     mgr.PoolEntries(),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func catCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Read a file through the VFD layer and write its contents to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := vfd.NewManager(cfg)
			if err != nil {
				return err
			}
			f, err := mgr.PathOpen(args[0], os.O_RDONLY, 0)
			if err != nil {
				return err
			}
			defer mgr.FileClose(f)

			buf := make([]byte, 32*1024)
			out := cmd.OutOrStdout()
			for {
				n, rerr := mgr.FileRead(f, buf, true)
				if n > 0 {
					if _, werr := out.Write(buf[:n]); werr != nil {
						return werr
					}
				}
				if rerr == io.EOF {
					return nil
				}
				if rerr != nil {
					return rerr
				}
			}
		},
	}
	return cmd
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "List a directory's entries through the allocated-desc table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := vfd.NewManager(cfg)
			if err != nil {
				return err
			}
			idx, err := mgr.AllocateDir(args[0])
			if err != nil {
				return err
			}
			defer mgr.FreeDesc(idx)

			out := cmd.OutOrStdout()
			for {
				entry, err := mgr.ReadDir(idx)
				if err != nil {
					return err
				}
				if entry == nil {
					return nil
				}
				suffix := ""
				if entry.IsDir {
					suffix = "/"
				}
				fmt.Fprintf(out, "%s%s\n", entry.Name, suffix)
			}
		},
	}
}
