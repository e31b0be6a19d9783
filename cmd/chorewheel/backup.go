package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorewheel/internal/backup"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage encrypted database snapshots",
	}
	cmd.AddCommand(backupRunCmd(), backupListCmd(), backupRestoreCmd())
	return cmd
}

func openBackupManager() (*backup.Manager, func(), error) {
	cfg, db, logger, err := bootstrap()
	if err != nil {
		return nil, nil, err
	}
	mgr, err := backup.NewManager(cfg.Backup(), db, logger.With("component", "backup"))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return mgr, func() { db.Close() }, nil
}

func backupRunCmd() *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Upload a snapshot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeDB, err := openBackupManager()
			if err != nil {
				return err
			}
			defer closeDB()

			now := time.Now()
			snap, err := mgr.Run(cmd.Context(), now)
			if err != nil {
				return err
			}
			if prune {
				if _, err := mgr.Cleanup(cmd.Context(), now); err != nil {
					return err
				}
			}
			return printJSON(snap)
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete snapshots past the retention period afterwards")
	return cmd
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeDB, err := openBackupManager()
			if err != nil {
				return err
			}
			defer closeDB()

			snaps, err := mgr.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(snaps)
		},
	}
}

func backupRestoreCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "restore KEY",
		Short: "Download and decrypt a snapshot into a new database file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			mgr, closeDB, err := openBackupManager()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := mgr.Restore(cmd.Context(), args[0], out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s to %s\n", args[0], out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Path to write the restored database")
	return cmd
}
