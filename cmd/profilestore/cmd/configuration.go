package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/oneconcern/profilestore/pkg/core"
	"github.com/spf13/cobra"
)

var configurationCmd = &cobra.Command{
	Use:     "configuration",
	Aliases: []string{"pid"},
	Short:   "Commands to read and update the property sets (PIDs) of a profile",
}

var configurationGetCmd = &cobra.Command{
	Use:   "get <version> <profile> <pid>",
	Short: "Print the properties of a PID",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(func(ctx context.Context, store *core.Store) error {
			props, err := store.GetConfiguration(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(props))
			for k := range props {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s=%s\n", k, props[k])
			}
			return nil
		})
		if err != nil {
			wrapFatalln("get configuration", err)
		}
	},
}

var configurationSetCmd = &cobra.Command{
	Use:   "set <version> <profile> <pid> [key=value...]",
	Short: "Replace the properties of a PID",
	Long: `Replace the properties of a PID.

Without any key=value pair, the PID is emptied.
`,
	Args: cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		props, err := parseAssignments(args[3:])
		if err != nil {
			wrapFatalln("set configuration", err)
			return
		}
		err = withStore(func(ctx context.Context, store *core.Store) error {
			return store.SetConfiguration(ctx, args[0], args[1], args[2], props)
		})
		if err != nil {
			wrapFatalln("set configuration", err)
		}
	},
}

var attributeSetCmd = &cobra.Command{
	Use:   "set-attribute <version> <profile> <key> [value]",
	Short: "Set a profile attribute. Without a value, the attribute is removed",
	Args:  cobra.RangeArgs(3, 4),
	Run: func(cmd *cobra.Command, args []string) {
		var value string
		if len(args) == 4 {
			value = args[3]
		}
		err := withStore(func(ctx context.Context, store *core.Store) error {
			return store.SetProfileAttribute(ctx, args[0], args[1], args[2], value)
		})
		if err != nil {
			wrapFatalln("set attribute", err)
		}
	},
}

func parseAssignments(args []string) (map[string]string, error) {
	props := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		props[key] = value
	}
	return props, nil
}

func init() {
	configurationCmd.AddCommand(configurationGetCmd, configurationSetCmd)
	profileCmd.AddCommand(attributeSetCmd)
	rootCmd.AddCommand(configurationCmd)
}
