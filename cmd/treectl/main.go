package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/treedata/internal/admin"
	"github.com/JonMunkholm/treedata/internal/config"
	"github.com/JonMunkholm/treedata/internal/core"
	"github.com/JonMunkholm/treedata/internal/logging"
	"github.com/JonMunkholm/treedata/internal/store"
)

var (
	envFile string
	treeID  int64

	service    *core.Service
	maint      *admin.Maintenance
	closeStore = func() {}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "treectl",
	Short: "Decision tree data exchange tool",
	Long: "Import, export and validate decision tree row data against the database " +
		"used by the API server.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsStore(cmd) {
			return nil
		}
		return setup(cmd.Context())
	},
}

// needsStore is false for help and shell completion.
func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// setup loads configuration and opens the store shared by all commands.
func setup(ctx context.Context) error {
	if err := godotenv.Overload(envFile); err != nil && envFile != ".env" {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	st, closeFn, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	closeStore = closeFn
	service = core.NewService(st, cfg)
	maint = &admin.Maintenance{Store: st}
	return nil
}

// printJSON writes v indented to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requireTree marks --tree as required on cmd.
func requireTree(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&treeID, "tree", 0, "Decision tree ID")
	_ = cmd.MarkFlagRequired("tree")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to an env file to load before reading configuration")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(adminCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	closeStore()
	stop()
	if err != nil {
		if msg := core.FormatUserError(err); core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, msg)
		}
		slog.Debug("command failed", "error", err)
		os.Exit(1)
	}
}
