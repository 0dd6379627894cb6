package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/leafnet-go/cmd/classify"
	configcmd "github.com/tphakala/leafnet-go/cmd/config"
	"github.com/tphakala/leafnet-go/cmd/labels"
	"github.com/tphakala/leafnet-go/cmd/serve"
	"github.com/tphakala/leafnet-go/internal/buildinfo"
	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// RootCommand creates and returns the root command. Subcommands share
// settings, which is filled in before any of them runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "leafnet",
		Short:         "LeafNet leaf classification server",
		Version:       build.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings, build),
		classify.Command(settings),
		labels.Command(settings),
		configcmd.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings, configFile)
	}

	return rootCmd
}

// initialize loads settings from defaults, the config file, environment and
// flags, in rising precedence, and installs the global logger.
func initialize(settings *conf.Settings, configFile string) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file (default searches ., ~/.config/leafnet, /etc/leafnet)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
