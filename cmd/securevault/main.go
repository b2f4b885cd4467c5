package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"securevault/internal/app"
	"securevault/internal/config"
	"securevault/internal/vaulterr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", displayError(err))
		os.Exit(1)
	}
}

// displayError renders vault errors through UserMessage. Anything else
// comes from the CLI's own setup (config file, flags) and is shown as is.
func displayError(err error) string {
	var verr *vaulterr.Error
	if errors.As(err, &verr) || errors.Is(err, context.Canceled) {
		return app.UserMessage(err)
	}
	return err.Error()
}

// loadConfig reads the config file named by the environment defaults.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a VaultApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "AddFile", "Export").
func newApp(operation string) (*app.VaultApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewVaultApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withVault opens the vault, prompts for the PIN and runs fn inside the
// resulting session.
func withVault(cmd *cobra.Command, operation string, fn func(a *app.VaultApp) error) error {
	a, err := newApp(operation)
	if err != nil {
		return err
	}
	defer a.Close()
	defer writeMetrics(cmd, a.Metrics())

	pin, err := readSecret("PIN: ")
	if err != nil {
		return err
	}
	if err := a.Authenticate(pin); err != nil {
		return err
	}
	return fn(a)
}

// writeMetrics dumps the run's metrics in the node_exporter textfile
// format when --metrics-file is set.
func writeMetrics(cmd *cobra.Command, g prometheus.Gatherer) {
	path, _ := cmd.Flags().GetString("metrics-file")
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: writing metrics: %v\n", err)
	}
}

// optionalID maps an empty flag value to nil (the root).
func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

var rootCmd = &cobra.Command{
	Use:           "securevault",
	Short:         "Local encrypted file vault",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		root, _ := cmd.Flags().GetString("vault-root")
		if root == "" {
			root = defaults["vault_root"]
		}
		cfg := config.NewConfig(root)

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Vault Root: %s\n", cfg.VaultRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Vault Root: %s\n", cfg.VaultRoot)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.Path)
		fmt.Printf("Data Dir:   %s\n", cfg.Vault.DataDir)
		fmt.Printf("Temp Dir:   %s\n", cfg.Upload.TempDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Compress:   %v (level %d, threshold %d)\n", cfg.Compression.Enabled, cfg.Compression.Level, cfg.Compression.Threshold)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("metrics-file", "", "Write run metrics to this file (Prometheus text format)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("vault-root", "", "Directory that holds the vault (default $SECUREVAULT_HOME)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(recoveryCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(emptyTrashCmd)
	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(backupCmd)
}
