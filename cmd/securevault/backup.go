package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"securevault/internal/app"
)

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a passphrase-encrypted copy of the metadata database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "BackupMetadata", func(a *app.VaultApp) error {
			passphrase, err := readNewSecret("Backup passphrase: ")
			if err != nil {
				return err
			}
			if err := a.BackupMetadata(args[0], passphrase); err != nil {
				return err
			}
			fmt.Printf("Metadata backed up to %s\n", args[0])
			return nil
		})
	},
}

var backupDecryptCmd = &cobra.Command{
	Use:   "decrypt SRC DEST",
	Short: "Decrypt a metadata backup into a SQLite database file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readSecret("Backup passphrase: ")
		if err != nil {
			return err
		}
		if err := app.DecryptMetadataBackup(args[0], args[1], passphrase); err != nil {
			return err
		}
		fmt.Printf("Decrypted backup written to %s\n", args[1])
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupDecryptCmd)
}
