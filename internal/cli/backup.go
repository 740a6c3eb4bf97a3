package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"castbot/internal/maintenance"
)

func newBackupCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write, list and read compressed job backups",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "now",
			Short: "Write a backup to maintenance.backup_dir and prune old ones",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				core, err := o.openCore(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = core.Close() }()

				path, err := core.Maintenance.RunBackup(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List backups, oldest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, cfg, err := o.loadConfig()
				if err != nil {
					return err
				}
				files, err := maintenance.ListBackups(cfg.Maintenance.BackupDir)
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <file>",
			Short: "Decompress a backup to stdout",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rc, err := maintenance.OpenBackup(filepath.Clean(args[0]))
				if err != nil {
					return err
				}
				defer func() { _ = rc.Close() }()
				_, err = io.Copy(cmd.OutOrStdout(), rc)
				return err
			},
		},
	)
	return cmd
}
