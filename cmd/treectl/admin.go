package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	clearTable int64
	confirm    bool
	purgeDays  int
)

// adminCmd represents the admin command
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Maintenance operations",
}

// clearCmd represents the admin clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete stored rows of a tree or one of its tables",
	Long: `Delete every stored row of the tree, or of a single table with --table.
This is destructive and requires --yes. Without it the rows that would be
deleted are counted and nothing changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm {
			n, err := maint.CountRows(cmd.Context(), treeID, clearTable)
			if err != nil {
				return err
			}
			return fmt.Errorf("refusing to delete %d rows without --yes", n)
		}

		var (
			n   int64
			err error
		)
		if clearTable > 0 {
			n, err = maint.ClearTable(cmd.Context(), treeID, clearTable)
		} else {
			n, err = maint.ClearTree(cmd.Context(), treeID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", n)
		return nil
	},
}

// purgeLogCmd represents the admin purge-log command
var purgeLogCmd = &cobra.Command{
	Use:   "purge-log",
	Short: "Delete validation log entries older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeDays < 1 {
			return fmt.Errorf("--days must be at least 1, got %d", purgeDays)
		}
		n, err := maint.PurgeValidationLog(cmd.Context(), time.Duration(purgeDays)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
		return nil
	},
}

// flushCacheCmd represents the admin flush-cache command
var flushCacheCmd = &cobra.Command{
	Use:   "flush-cache",
	Short: "Drop the cached schema of a tree",
	Long: `Drop the tree's schema from the Redis cache so the next import or export
reads it from the database. Use after editing tables or columns without
bumping the schema version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flushed, err := maint.FlushSchemaCache(cmd.Context(), treeID)
		if err != nil {
			return err
		}
		if !flushed {
			fmt.Fprintln(cmd.OutOrStdout(), "schema cache is not enabled")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "flushed schema cache of tree %d\n", treeID)
		return nil
	},
}

func init() {
	requireTree(clearCmd)
	clearCmd.Flags().Int64Var(&clearTable, "table", 0, "Only clear this table")
	clearCmd.Flags().BoolVar(&confirm, "yes", false, "Confirm deletion")

	purgeLogCmd.Flags().IntVar(&purgeDays, "days", 30, "Age in days of entries to delete")

	adminCmd.AddCommand(clearCmd)
	adminCmd.AddCommand(purgeLogCmd)

	requireTree(flushCacheCmd)
	adminCmd.AddCommand(flushCacheCmd)
}
