package cmd

import (
	"context"
	"fmt"

	"github.com/oneconcern/profilestore/pkg/core"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Commands to manage configuration versions",
	Long: `Commands to manage configuration versions.

A version is a branch of the repository, named like "1.0" or "2.3.1".
`,
}

var versionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List versions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			versions, err := store.ListVersions(ctx)
			if err != nil {
				return err
			}
			for _, version := range versions {
				fmt.Println(version)
			}
			return nil
		})
		if err != nil {
			wrapFatalln("list versions", err)
		}
	},
}

var versionCreateCmd = &cobra.Command{
	Use:   "create <version>",
	Short: "Create a version, optionally branching from another one",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			return store.CreateVersion(ctx, params.version.parent, args[0])
		})
		if err != nil {
			wrapFatalln("create version", err)
			return
		}
		fmt.Printf("created version %s\n", args[0])
	},
}

var versionDeleteCmd = &cobra.Command{
	Use:   "delete <version>",
	Short: "Delete a version, locally and on the remote",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			return store.DeleteVersion(ctx, args[0])
		})
		if err != nil {
			wrapFatalln("delete version", err)
			return
		}
		fmt.Printf("deleted version %s\n", args[0])
	},
}

func init() {
	addParentFlag(versionCreateCmd)
	versionCmd.AddCommand(versionListCmd, versionCreateCmd, versionDeleteCmd)
	rootCmd.AddCommand(versionCmd)
}
