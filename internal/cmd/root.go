package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/atikulmunna/kitsune/internal/config"
	"github.com/atikulmunna/kitsune/internal/session"
)

var (
	cfgFile string
	cfg     config.Config

	v   = viper.New()
	log = logrus.New()
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "kitsune",
	Short: "Kitsune, a real-time multi-file log viewer",
	Long: `Kitsune tails several log files at once, detects timestamps and levels,
and keeps the panels in step: selecting a line in one panel moves every
other panel to the line closest in time.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults(v)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.kitsune.yaml)")
	flags.StringP("output", "o", "text", "output format: text, json")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.String("session-file", "", "session file (default: "+session.DefaultPath()+")")

	cobra.CheckErr(v.BindPFlag("output", flags.Lookup("output")))
	cobra.CheckErr(v.BindPFlag("log_level", flags.Lookup("log-level")))
	cobra.CheckErr(v.BindPFlag("session_file", flags.Lookup("session-file")))
}

func initConfig() error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName(".kitsune")
		v.SetConfigType("yaml")
	}

	config.BindEnv(v)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// loadConfig resolves the settings and configures logging before any
// command runs.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := initConfig(); err != nil {
		return err
	}

	c, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = c

	log.SetOutput(os.Stderr)
	log.SetLevel(cfg.Level())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if used := v.ConfigFileUsed(); used != "" {
		log.WithField("file", used).Debug("loaded config")
	}
	return nil
}
