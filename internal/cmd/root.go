// Package cmd wires the CLI surface: the root command, configuration
// loading, and the serve and version subcommands.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tallyd/tallyd/internal/config"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tallyd",
	Short: "Horizontally replicated counter service",
	Long: `tallyd is a stateless, horizontally replicated counter service.

Replicas share a single counter through an external atomic key-value store;
any number of replicas may run concurrently. Use the subcommands to perform
specific operations.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config and /etc/tallyd)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from flag
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/tallyd")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Environment variables: TALLYD_STORE_ADDR → store.addr
	viper.SetEnvPrefix("TALLYD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// It's OK if the config file doesn't exist, we have defaults
	_ = viper.ReadInConfig()

	if verbose {
		viper.Set("logging.level", "debug")
	}
}
