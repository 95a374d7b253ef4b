package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oneconcern/profilestore/pkg/core"
	"github.com/oneconcern/profilestore/pkg/storage"
	"github.com/oneconcern/profilestore/pkg/storage/localfs"
	"github.com/oneconcern/profilestore/pkg/storage/ziparchive"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Commands to move profiles in and out of a version",
	Long: `Commands to move profiles in and out of a version.

A bundle is either a directory or a zip archive (any path ending with .zip).
`,
}

var bundleExportCmd = &cobra.Command{
	Use:   "export <version> <path>",
	Short: "Export the profiles of a version to a bundle",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		dst, err := createBundle(args[1])
		if err != nil {
			wrapFatalln("create bundle", err)
			return
		}
		err = withStore(func(ctx context.Context, store *core.Store) error {
			manifest, err := store.ExportProfiles(ctx, args[0], dst, params.bundle.pattern)
			if err != nil {
				return err
			}
			fmt.Printf("exported %d profiles (%d files) to %s\n", len(manifest.Profiles), manifest.Files, args[1])
			return nil
		})
		if cerr := storage.Close(dst); err == nil {
			err = cerr
		}
		if err != nil {
			wrapFatalln("export bundle", err)
		}
	},
}

var bundleImportCmd = &cobra.Command{
	Use:   "import <version> <path>",
	Short: "Import the profiles of a bundle into a version",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		src, err := openBundle(args[1])
		if err != nil {
			wrapFatalln("open bundle", err)
			return
		}
		defer func() { _ = storage.Close(src) }()

		err = withStore(func(ctx context.Context, store *core.Store) error {
			ids, err := store.ImportProfiles(ctx, args[0], src)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d profiles into %s\n", len(ids), args[0])
			return nil
		})
		if err != nil {
			wrapFatalln("import bundle", err)
		}
	},
}

func isArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}

func instrument(s storage.Store) (storage.Store, error) {
	l, err := cliLogger()
	if err != nil {
		return nil, err
	}
	return storage.Instrument(l.Named("bundle"), s), nil
}

func createBundle(path string) (storage.Store, error) {
	if isArchive(path) {
		zs, err := ziparchive.Create(afero.NewOsFs(), path)
		if err != nil {
			return nil, err
		}
		return instrument(zs)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return instrument(localfs.NewAt(path))
}

func openBundle(path string) (storage.Store, error) {
	if isArchive(path) {
		zs, err := ziparchive.Open(afero.NewOsFs(), path)
		if err != nil {
			return nil, err
		}
		return instrument(zs)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is neither a directory nor a zip archive", path)
	}
	return instrument(localfs.NewAt(path))
}

func init() {
	addPatternFlag(bundleExportCmd)
	bundleCmd.AddCommand(bundleExportCmd, bundleImportCmd)
	rootCmd.AddCommand(bundleCmd)
}
