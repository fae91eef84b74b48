// Package cli implements the catalogd command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/daemon"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "catalogd",
	Short: "Reputation-weighted catalog governance and staking ledger",
	Long: `catalogd runs a ledger where ranked accounts vote on catalog listings,
removals and rank grants, and staked accounts earn rewards for accepted
listings. State is rebuilt from the operation journal on every start.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default $CATALOGDAO_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file named by --config, or the default one,
// and applies flag overrides.
func loadConfig() (daemon.Config, error) {
	path := configFile
	if path == "" {
		path = daemon.DefaultConfigPath()
	}
	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger, falling back to a no-op logger.
func newLogger(cfg daemon.Config) *zap.Logger {
	logger, err := daemon.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; logging disabled\n", err)
		return zap.NewNop()
	}
	return logger
}
