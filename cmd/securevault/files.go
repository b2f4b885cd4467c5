package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"securevault/internal/app"
	"securevault/internal/model"
)

// add command
var addCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Encrypt and store a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		folder, _ := cmd.Flags().GetString("folder")

		return withVault(cmd, "AddFile", func(a *app.VaultApp) error {
			entry, err := a.AddFile(cmd.Context(), args[0], name, optionalID(folder))
			if err != nil {
				return err
			}
			printFile(entry)
			return nil
		})
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import PATH",
	Short: "Store a file or a whole directory tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")

		return withVault(cmd, "ImportPath", func(a *app.VaultApp) error {
			entries, err := a.ImportPath(cmd.Context(), args[0], optionalID(folder))
			for _, e := range entries {
				printFile(e)
			}
			fmt.Printf("Stored %d file(s)\n", len(entries))
			return err
		})
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload PATH",
	Short: "Store a file through a chunked upload session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		chunkSize, _ := cmd.Flags().GetInt("chunk-size")
		if chunkSize <= 0 {
			return fmt.Errorf("chunk size must be positive")
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", args[0], err)
		}

		return withVault(cmd, "ChunkedUpload", func(a *app.VaultApp) error {
			id, err := a.StartChunkedUpload(filepath.Base(args[0]), info.Size(), optionalID(folder))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			buf := make([]byte, chunkSize)
			var sent int64
			for index := 0; ; index++ {
				if err := ctx.Err(); err != nil {
					a.CancelChunkedUpload(id)
					return err
				}
				n, rerr := io.ReadFull(f, buf)
				if rerr != nil && rerr != io.ErrUnexpectedEOF {
					a.CancelChunkedUpload(id)
					return fmt.Errorf("reading %s: %w", args[0], rerr)
				}
				sent += int64(n)
				last := sent >= info.Size()
				entry, err := a.UploadChunk(ctx, id, index, buf[:n], last)
				if err != nil {
					if !last {
						a.CancelChunkedUpload(id)
					}
					return err
				}
				if last {
					printFile(entry)
					return nil
				}
				fmt.Fprintf(os.Stderr, "\r%d/%d bytes", sent, info.Size())
			}
		})
	},
}

// update command
var updateCmd = &cobra.Command{
	Use:   "update ID PATH",
	Short: "Replace a stored file's content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "UpdateFileContent", func(a *app.VaultApp) error {
			entry, err := a.UpdateFileContent(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printFile(entry)
			return nil
		})
	},
}

// cat command
var catCmd = &cobra.Command{
	Use:   "cat ID",
	Short: "Decrypt a file to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "GetFileContent", func(a *app.VaultApp) error {
			data, err := a.GetFileContent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer clear(data)
			_, err = os.Stdout.Write(data)
			return err
		})
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export ID DEST",
	Short: "Decrypt a file to a new local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "ExportFile", func(a *app.VaultApp) error {
			if err := a.ExportFile(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Exported to %s\n", args[1])
			return nil
		})
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List folders and files",
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		trash, _ := cmd.Flags().GetBool("trash")

		return withVault(cmd, "List", func(a *app.VaultApp) error {
			if trash {
				files, err := a.ListTrash()
				if err != nil {
					return err
				}
				printFiles(files)
				return nil
			}

			folders, err := a.ListFolders(optionalID(folder))
			if err != nil {
				return err
			}
			for _, f := range folders {
				fmt.Printf("%s  %-40s  %d file(s)  %d bytes\n", f.ID, f.Path+"/", f.FileCount, f.TotalSize)
			}
			files, err := a.ListFiles(optionalID(folder))
			if err != nil {
				return err
			}
			printFiles(files)
			return nil
		})
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Find files by name, description or tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "SearchFiles", func(a *app.VaultApp) error {
			files, err := a.SearchFiles(args[0])
			if err != nil {
				return err
			}
			printFiles(files)
			return nil
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "RenameFile", func(a *app.VaultApp) error {
			entry, err := a.RenameFile(args[0], args[1])
			if err != nil {
				return err
			}
			printFile(entry)
			return nil
		})
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv ID",
	Short: "Move a file to another folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")

		return withVault(cmd, "MoveFile", func(a *app.VaultApp) error {
			entry, err := a.MoveFile(args[0], optionalID(folder))
			if err != nil {
				return err
			}
			printFile(entry)
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Move a file to the trash, or delete it permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		permanent, _ := cmd.Flags().GetBool("permanent")

		return withVault(cmd, "RemoveFile", func(a *app.VaultApp) error {
			if permanent {
				if err := a.RemoveFile(args[0]); err != nil {
					return err
				}
				fmt.Println("File deleted.")
				return nil
			}
			if err := a.TrashFile(args[0]); err != nil {
				return err
			}
			fmt.Println("File moved to trash.")
			return nil
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore a file from the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "RestoreFile", func(a *app.VaultApp) error {
			entry, err := a.RestoreFile(args[0])
			if err != nil {
				return err
			}
			printFile(entry)
			return nil
		})
	},
}

var emptyTrashCmd = &cobra.Command{
	Use:   "empty-trash",
	Short: "Permanently delete every trashed file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, "EmptyTrash", func(a *app.VaultApp) error {
			n, err := a.EmptyTrash()
			fmt.Printf("Deleted %d file(s)\n", n)
			return err
		})
	},
}

func printFile(f *model.FileEntry) {
	compressed := ""
	if f.IsCompressed {
		compressed = fmt.Sprintf("  gz %.0f%%", f.CompressionRatio*100)
	}
	fmt.Printf("%s  %-40s  %10d  %s%s\n", f.ID, f.FileName, f.FileSize, f.ModifiedDate.Format("2006-01-02 15:04:05"), compressed)
}

func printFiles(files []*model.FileEntry) {
	if len(files) == 0 {
		fmt.Println("No files.")
		return
	}
	for _, f := range files {
		printFile(f)
	}
}

func init() {
	addCmd.Flags().String("name", "", "Name to store the file under (default: base name)")
	addCmd.Flags().String("folder", "", "Destination folder ID (default: root)")
	importCmd.Flags().String("folder", "", "Destination folder ID (default: root)")
	uploadCmd.Flags().String("folder", "", "Destination folder ID (default: root)")
	uploadCmd.Flags().Int("chunk-size", 4<<20, "Bytes per upload chunk")
	lsCmd.Flags().String("folder", "", "Folder ID to list (default: root)")
	lsCmd.Flags().Bool("trash", false, "List trashed files instead")
	mvCmd.Flags().String("folder", "", "Destination folder ID (default: root)")
	rmCmd.Flags().Bool("permanent", false, "Delete permanently instead of trashing")
}
