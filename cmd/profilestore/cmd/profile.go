package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/oneconcern/profilestore/pkg/core"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Commands to manage the profiles of a version",
}

var profileListCmd = &cobra.Command{
	Use:   "list <version>",
	Short: "List the profiles of a version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			ids, err := store.GetProfiles(ctx, args[0])
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		})
		if err != nil {
			wrapFatalln("list profiles", err)
		}
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <version> <profile>",
	Short: "Create a profile",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			return store.CreateProfile(ctx, args[0], args[1])
		})
		if err != nil {
			wrapFatalln("create profile", err)
		}
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <version> <profile>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			return store.DeleteProfile(ctx, args[0], args[1])
		})
		if err != nil {
			wrapFatalln("delete profile", err)
		}
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <version> <profile>",
	Short: "Show a profile as yaml",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			get := store.GetProfile
			if params.profile.overlay {
				get = store.GetOverlayProfile
			}
			p, err := get(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return yaml.NewEncoder(os.Stdout).Encode(newProfileView(p))
		})
		if err != nil {
			wrapFatalln("show profile", err)
		}
	},
}

type profileView struct {
	ID             string                       `yaml:"id"`
	Version        string                       `yaml:"version"`
	LastModified   string                       `yaml:"lastModified,omitempty"`
	Overlay        bool                         `yaml:"overlay,omitempty"`
	Parents        []string                     `yaml:"parents,omitempty"`
	Attributes     map[string]string            `yaml:"attributes,omitempty"`
	Configurations map[string]map[string]string `yaml:"configurations,omitempty"`
	Files          map[string]string            `yaml:"files,omitempty"`
}

func newProfileView(p *model.Profile) profileView {
	files := make(map[string]string, len(p.Files))
	for name, content := range p.Files {
		if model.IsPIDFile(name) {
			continue
		}
		files[name] = string(content)
	}
	return profileView{
		ID:             p.ID,
		Version:        p.Version,
		LastModified:   p.LastModified,
		Overlay:        p.Overlay,
		Parents:        p.Parents,
		Attributes:     p.Attributes,
		Configurations: p.Configurations,
		Files:          files,
	}
}

func init() {
	addOverlayFlag(profileShowCmd)
	profileCmd.AddCommand(profileListCmd, profileCreateCmd, profileDeleteCmd, profileShowCmd)
	rootCmd.AddCommand(profileCmd)
}
