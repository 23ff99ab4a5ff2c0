package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect decision tree schemas",
}

// schemaCheckCmd represents the schema check command
var schemaCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a tree's tables for schema problems",
	Long: `List the tree's tables and check each for colliding column names or header
aliases and for more than one unique identifier column.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := service.CheckSchema(cmd.Context(), treeID)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTABLE\tSTATUS\tCOLUMNS\tUNIQUE ID")
		for _, t := range tables {
			uid := "-"
			if c, ok := t.UniqueIdentifier(); ok {
				uid = c.Name
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", t.ID, t.Name, t.Status, len(t.ActiveColumns()), uid)
		}
		if ferr := tw.Flush(); ferr != nil {
			return ferr
		}
		return err
	},
}

func init() {
	requireTree(schemaCheckCmd)
	schemaCmd.AddCommand(schemaCheckCmd)
}
