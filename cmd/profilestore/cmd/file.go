package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/oneconcern/profilestore/pkg/core"
	"github.com/spf13/cobra"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Commands to read and write the files of a profile",
}

var fileListCmd = &cobra.Command{
	Use:   "list <version> [dir]",
	Short: "List the files found under a directory of some profiles",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		var dir string
		if len(args) == 2 {
			dir = args[1]
		}
		err := withStore(func(ctx context.Context, store *core.Store) error {
			names, err := store.ListFiles(ctx, args[0], params.file.profiles, dir)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		})
		if err != nil {
			wrapFatalln("list files", err)
		}
	},
}

var fileGetCmd = &cobra.Command{
	Use:   "get <version> <profile> <file>",
	Short: "Print the content of a profile file",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			content, err := store.GetFileConfiguration(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if content == nil {
				return fmt.Errorf("no file %q in profile %s", args[2], args[1])
			}
			_, err = os.Stdout.Write(content)
			return err
		})
		if err != nil {
			wrapFatalln("get file", err)
		}
	},
}

var filePutCmd = &cobra.Command{
	Use:   "put <version> <profile> <file> <local path>",
	Short: "Store a local file in a profile",
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		content, err := os.ReadFile(args[3])
		if err != nil {
			wrapFatalln("read local file", err)
			return
		}
		err = withStore(func(ctx context.Context, store *core.Store) error {
			return store.SetFileConfiguration(ctx, args[0], args[1], args[2], content)
		})
		if err != nil {
			wrapFatalln("put file", err)
		}
	},
}

var fileRemoveCmd = &cobra.Command{
	Use:   "rm <version> <profile> <file>",
	Short: "Remove a file from a profile",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			return store.SetFileConfiguration(ctx, args[0], args[1], args[2], nil)
		})
		if err != nil {
			wrapFatalln("remove file", err)
		}
	},
}

func init() {
	addProfilesFlag(fileListCmd)
	requireFlags(fileListCmd, "profiles")
	fileCmd.AddCommand(fileListCmd, fileGetCmd, filePutCmd, fileRemoveCmd)
	rootCmd.AddCommand(fileCmd)
}
