package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"securevault/internal/app"
	"securevault/internal/auth"
)

// init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set the first PIN and create the vault key",
	RunE: func(cmd *cobra.Command, args []string) error {
		complexity, err := complexityFlag(cmd)
		if err != nil {
			return err
		}
		withRecovery, _ := cmd.Flags().GetBool("recovery-key")

		a, err := newApp("SetPin")
		if err != nil {
			return err
		}
		defer a.Close()

		pin, err := readNewSecret("New PIN: ")
		if err != nil {
			return err
		}
		if err := a.SetPin(pin, complexity); err != nil {
			return err
		}
		fmt.Println("Vault initialized.")

		if !withRecovery {
			return nil
		}
		if err := a.Authenticate(pin); err != nil {
			return err
		}
		return printRecoveryKey(a)
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Status")
		if err != nil {
			return err
		}
		defer a.Close()

		hasPin, err := a.HasPin()
		if err != nil {
			return err
		}
		if !hasPin {
			fmt.Println("Vault not initialized. Run: securevault init")
			return nil
		}

		status, err := a.AuthState()
		if err != nil {
			return err
		}
		fmt.Printf("State:           %s\n", status.State)
		fmt.Printf("Failed attempts: %d\n", status.FailedAttempts)
		if status.LockoutRemaining != "" {
			fmt.Printf("Locked for:      %s\n", status.LockoutRemaining)
		}
		return nil
	},
}

// pin command
var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage the PIN",
}

var pinChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		complexity, err := complexityFlag(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ChangePin")
		if err != nil {
			return err
		}
		defer a.Close()

		oldPin, err := readSecret("Current PIN: ")
		if err != nil {
			return err
		}
		newPin, err := readNewSecret("New PIN: ")
		if err != nil {
			return err
		}
		if err := a.ChangePin(oldPin, newPin, complexity); err != nil {
			return err
		}
		fmt.Println("PIN changed.")
		return nil
	},
}

var pinResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Set a new PIN using a recovery key",
	RunE: func(cmd *cobra.Command, args []string) error {
		complexity, err := complexityFlag(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ResetPin")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := readSecret("Recovery key: ")
		if err != nil {
			return err
		}
		if err := a.AuthenticateRecoveryKey(key); err != nil {
			return err
		}
		newPin, err := readNewSecret("New PIN: ")
		if err != nil {
			return err
		}
		if err := a.ResetPin(newPin, complexity); err != nil {
			return err
		}
		fmt.Println("PIN reset. The recovery key has been used; generate a new one.")
		return nil
	},
}

// recovery command
var recoveryCmd = &cobra.Command{
	Use:   "recovery-key",
	Short: "Generate a new recovery key, replacing any previous one",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "GenerateRecoveryKey", printRecoveryKey)
	},
}

func printRecoveryKey(a *app.VaultApp) error {
	key, err := a.GenerateRecoveryKey()
	if err != nil {
		return err
	}
	fmt.Println("Recovery key (shown once, store it offline):")
	fmt.Println()
	fmt.Printf("  %s\n", key)
	return nil
}

func complexityFlag(cmd *cobra.Command) (auth.Complexity, error) {
	s, _ := cmd.Flags().GetString("complexity")
	return auth.ParseComplexity(s)
}

func init() {
	initCmd.Flags().String("complexity", "basic", "PIN rule: basic or strong")
	initCmd.Flags().Bool("recovery-key", false, "Also generate a recovery key")

	pinCmd.AddCommand(pinChangeCmd)
	pinCmd.AddCommand(pinResetCmd)
	pinChangeCmd.Flags().String("complexity", "basic", "PIN rule: basic or strong")
	pinResetCmd.Flags().String("complexity", "basic", "PIN rule: basic or strong")
}
