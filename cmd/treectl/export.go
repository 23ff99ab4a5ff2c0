package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/treedata/internal/core"
	"github.com/JonMunkholm/treedata/internal/exchange"
)

var (
	exportOut       string
	inactiveTables  bool
	inactiveColumns bool
	exportPretty    bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a decision tree's rows",
	Long:  `Export a decision tree's rows as an Excel workbook or a JSON exchange document.`,
}

// exportExcelCmd represents the export excel command
var exportExcelCmd = &cobra.Command{
	Use:   "excel",
	Short: "Export rows as an .xlsx workbook",
	Long: `Export one worksheet per table. Without --out the file is named after the
tree code and the current time, e.g. JOB_20250602_140509.xlsx.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := exportOut
		if out == "" {
			tree, err := service.Tree(ctx, treeID)
			if err != nil {
				return err
			}
			out = core.ExportFileName(tree.Code, time.Now())
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		rows, err := service.ExportSpreadsheet(ctx, treeID, f, exportOpts())
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d rows)\n", out, rows)
		return nil
	},
}

// exportJSONCmd represents the export json command
var exportJSONCmd = &cobra.Command{
	Use:   "json",
	Short: "Export schema and rows as a JSON document",
	Long:  `Export the tree's schema and rows as a JSON exchange document. Writes to stdout unless --out is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := service.ExportJSON(cmd.Context(), treeID, exportOpts())
		if err != nil {
			return err
		}

		if exportOut == "" || exportOut == "-" {
			return exchange.Encode(cmd.OutOrStdout(), doc, exportPretty)
		}
		if !strings.HasSuffix(strings.ToLower(exportOut), ".json") {
			exportOut += ".json"
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		err = exchange.Encode(f, doc, exportPretty)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d tables, %d rows)\n", exportOut, len(doc.Tables), doc.RowCount())
		return nil
	},
}

func exportOpts() core.ExportOptions {
	return core.ExportOptions{
		IncludeInactiveTables:  inactiveTables,
		IncludeInactiveColumns: inactiveColumns,
	}
}

func init() {
	for _, c := range []*cobra.Command{exportExcelCmd, exportJSONCmd} {
		requireTree(c)
		c.Flags().StringVarP(&exportOut, "out", "o", "", "Output file")
		c.Flags().BoolVar(&inactiveTables, "include-inactive-tables", false, "Also export inactive tables")
		c.Flags().BoolVar(&inactiveColumns, "include-inactive-columns", false, "Also export inactive columns")
		exportCmd.AddCommand(c)
	}
	exportJSONCmd.Flags().BoolVar(&exportPretty, "pretty", true, "Indent the JSON output")
}
