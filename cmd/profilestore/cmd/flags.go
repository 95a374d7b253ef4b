package cmd

import (
	"github.com/spf13/cobra"
)

type flagsT struct {
	root struct {
		configFile string
		logLevel   string
		dataDir    string
		remoteURL  string
	}
	version struct {
		parent string
	}
	profile struct {
		overlay bool
	}
	file struct {
		profiles []string
	}
	bundle struct {
		pattern string
	}
	serve struct {
		metricsAddr string
	}
}

var params flagsT

func addParentFlag(cmd *cobra.Command) string {
	const flag = "parent"
	cmd.Flags().StringVar(&params.version.parent, flag, "", "The version to branch from. Empty creates an empty version")
	return flag
}

func addOverlayFlag(cmd *cobra.Command) string {
	const flag = "overlay"
	cmd.Flags().BoolVar(&params.profile.overlay, flag, false, "Show the profile merged with its ancestors")
	return flag
}

func addProfilesFlag(cmd *cobra.Command) string {
	const flag = "profiles"
	cmd.Flags().StringSliceVar(&params.file.profiles, flag, nil, "The profiles to list files from")
	return flag
}

func addPatternFlag(cmd *cobra.Command) string {
	const flag = "pattern"
	cmd.Flags().StringVar(&params.bundle.pattern, flag, "*", "Export the profiles matching this glob pattern")
	return flag
}

func addMetricsAddrFlag(cmd *cobra.Command) string {
	const flag = "metrics-addr"
	cmd.Flags().StringVar(&params.serve.metricsAddr, flag, ":9090", "Serve prometheus metrics on this address. Empty disables metrics")
	return flag
}

func requireFlags(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			logFatalln(err)
		}
	}
}
