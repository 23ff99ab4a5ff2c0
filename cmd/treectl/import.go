package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/treedata/internal/core"
)

var (
	importFile      string
	importReplace   bool
	continueOnError bool
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import rows into a decision tree",
	Long:  `Import rows from an Excel workbook or a JSON exchange document into a decision tree.`,
}

// importExcelCmd represents the import excel command
var importExcelCmd = &cobra.Command{
	Use:   "excel",
	Short: "Import an .xlsx workbook",
	Long: `Import an .xlsx workbook, one worksheet per table. Rows are merged on each
table's unique identifier column; --replace deletes stored rows first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, func(r io.Reader, opts core.ImportOptions) (*core.ImportResult, error) {
			return service.ImportSpreadsheet(cmd.Context(), treeID, r, opts)
		})
	},
}

// importJSONCmd represents the import json command
var importJSONCmd = &cobra.Command{
	Use:   "json",
	Short: "Import a JSON exchange document",
	Long: `Import a document produced by "export json". Rows are added as new rows;
--replace deletes stored rows of each imported table first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, func(r io.Reader, opts core.ImportOptions) (*core.ImportResult, error) {
			return service.ImportJSON(cmd.Context(), treeID, r, opts)
		})
	},
}

type importFunc func(r io.Reader, opts core.ImportOptions) (*core.ImportResult, error)

// runImport opens --file, runs the import and prints the result. The
// result is printed even when the import fails so row issues are visible.
func runImport(cmd *cobra.Command, run importFunc) error {
	f, err := os.Open(importFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", importFile, err)
	}
	defer f.Close()

	opts := service.DefaultImportOptions()
	opts.Replace = importReplace
	if cmd.Flags().Changed("continue-on-error") {
		opts.ContinueOnError = continueOnError
	}

	res, err := run(f, opts)
	if res != nil {
		if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
			return perr
		}
	}
	return err
}

func init() {
	for _, c := range []*cobra.Command{importExcelCmd, importJSONCmd} {
		requireTree(c)
		c.Flags().StringVarP(&importFile, "file", "f", "", "File to import")
		_ = c.MarkFlagRequired("file")
		c.Flags().BoolVar(&importReplace, "replace", false, "Delete stored rows of each imported table first")
		c.Flags().BoolVar(&continueOnError, "continue-on-error", true, "Write valid rows when other rows fail validation")
		importCmd.AddCommand(c)
	}
}
