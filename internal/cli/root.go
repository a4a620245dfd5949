package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lenstracker-reminders/config"
	"lenstracker-reminders/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for lenstrackerd.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "lenstrackerd",
		Short:         "LensTracker reminder service",
		Long:          "Stores lens wear cycles and push subscriptions, and sends replacement reminders.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml"
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultPath, "path to the YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))

	return cmd
}

// load reads the configuration and builds the logger every command uses.
func (o *RootOptions) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.Log)
	log.WithField("path", o.ConfigPath).Debug("Configuration loaded")
	return cfg, log, nil
}
