package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"securevault/internal/app"
)

// folder command
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")

		return withVault(cmd, "CreateFolder", func(a *app.VaultApp) error {
			f, err := a.CreateFolder(args[0], optionalID(parent))
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", f.ID, f.Path)
			return nil
		})
	},
}

var folderRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")

		return withVault(cmd, "DeleteFolder", func(a *app.VaultApp) error {
			n, err := a.DeleteFolder(args[0], recursive)
			if err != nil {
				return err
			}
			fmt.Printf("Folder deleted (%d file(s) removed)\n", n)
			return nil
		})
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "RenameFolder", func(a *app.VaultApp) error {
			return a.RenameFolder(args[0], args[1])
		})
	},
}

var folderMvCmd = &cobra.Command{
	Use:   "mv ID",
	Short: "Move a folder under another folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")

		return withVault(cmd, "MoveFolder", func(a *app.VaultApp) error {
			return a.MoveFolder(args[0], optionalID(parent))
		})
	},
}

var folderStatsCmd = &cobra.Command{
	Use:   "stats ID",
	Short: "Show a folder's size and counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "FolderStats", func(a *app.VaultApp) error {
			s, err := a.FolderStats(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Files:      %d\n", s.FileCount)
			fmt.Printf("Subfolders: %d\n", s.Subfolders)
			fmt.Printf("Total size: %d bytes\n", s.TotalSize)
			return nil
		})
	},
}

func init() {
	folderCmd.AddCommand(folderCreateCmd)
	folderCmd.AddCommand(folderRmCmd)
	folderCmd.AddCommand(folderRenameCmd)
	folderCmd.AddCommand(folderMvCmd)
	folderCmd.AddCommand(folderStatsCmd)
	folderCreateCmd.Flags().String("parent", "", "Parent folder ID (default: root)")
	folderRmCmd.Flags().BoolP("recursive", "r", false, "Also delete everything inside")
	folderMvCmd.Flags().String("parent", "", "New parent folder ID (default: root)")
}
