package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/treedata/internal/validation"
)

var (
	tableID int64
	rowJSON string
)

var errRowInvalid = errors.New("row is invalid")

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate rows against a table",
	Long: `Validate a row given as a JSON object, or several rows given as a JSON
array, against a table's active columns. Rows of an array are numbered as
spreadsheet rows starting at 2. Nothing is stored. Exits non-zero when any
row has errors.`,
	Example: `  treectl validate --tree 1 --table 10 --row '{"AdayId": 7, "AdSoyad": "Ayse"}'
  treectl validate --tree 1 --table 10 --row '[{"AdayId": 7}, {"AdayId": 8}]'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			res validation.Result
			err error
		)
		if strings.HasPrefix(strings.TrimSpace(rowJSON), "[") {
			var rows []map[string]any
			if err := decodeRow(rowJSON, &rows); err != nil {
				return err
			}
			res, err = service.ValidateRows(cmd.Context(), treeID, tableID, rows)
		} else {
			var row map[string]any
			if err := decodeRow(rowJSON, &row); err != nil {
				return err
			}
			res, err = service.ValidateRow(cmd.Context(), treeID, tableID, row)
		}
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.Valid {
			return fmt.Errorf("%w: %d errors", errRowInvalid, len(res.Errors))
		}
		return nil
	},
}

func decodeRow(s string, v any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parse --row: %w", err)
	}
	return nil
}

func init() {
	requireTree(validateCmd)
	validateCmd.Flags().Int64Var(&tableID, "table", 0, "Table ID")
	validateCmd.Flags().StringVar(&rowJSON, "row", "", "Row as a JSON object, or rows as a JSON array")
	_ = validateCmd.MarkFlagRequired("table")
	_ = validateCmd.MarkFlagRequired("row")
}
