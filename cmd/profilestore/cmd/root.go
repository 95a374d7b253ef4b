package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/oneconcern/profilestore/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "profilestore",
	Short: "Profilestore keeps versioned configuration profiles in git",
	Long: `Profilestore keeps configuration profiles in a git repository replicated across nodes.

Every version of the configuration is a branch. Profiles are directories holding
configuration files and property sets (PIDs). A profile may inherit from parent
profiles: its overlay merges the configuration of all its ancestors.
`,
	SilenceUsage: true,
}

var (
	v        *viper.Viper
	settings config.Config
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&params.root.configFile, "config", os.Getenv("PROFILESTORE_CONFIG"), "The configuration file. Defaults to profilestore.yaml in the current directory, $HOME/.profilestore or /etc/profilestore")
	flags.StringVar(&params.root.logLevel, "log-level", "info", "The logging level: debug, info, warn, error or none")
	flags.StringVar(&params.root.dataDir, "data-dir", "", "The directory of the local repository. Empty keeps the repository in memory")
	flags.StringVar(&params.root.remoteURL, "remote", "", "The URL of the remote repository")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	v = config.New(params.root.configFile)
	bindings := map[string]string{
		"logLevel":   "log-level",
		"dataDir":    "data-dir",
		"remote.url": "remote",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			wrapFatalln("binding flag "+flag, err)
			return
		}
	}
	var err error
	settings, err = config.Load(v)
	if err != nil {
		wrapFatalln("loading configuration", err)
		return
	}
	if used := v.ConfigFileUsed(); used != "" && settings.LogLevel == "debug" {
		log.Println("Using config file:", used)
	}
}
