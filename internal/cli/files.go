package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ric-network/catalogdao/internal/daemon"
)

// ─── config / genesis ───────────────────────────────────────────────────────
// Both files live under $CATALOGDAO_HOME by default. init commands never
// overwrite an existing file unless --force is given.

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(genesisCmd)
	genesisCmd.AddCommand(genesisInitCmd)
	genesisCmd.AddCommand(genesisShowCmd)

	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	genesisInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	genesisInitCmd.Flags().StringP("file", "f", "", "genesis path (default $CATALOGDAO_HOME/genesis.yaml)")
	genesisInitCmd.Flags().String("admin", "", "administrator account")
	genesisShowCmd.Flags().StringP("file", "f", "", "genesis path (default storage.genesis)")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the node configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = daemon.DefaultConfigPath()
		}
		force, _ := cmd.Flags().GetBool("force")
		f, err := createFile(path, force)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := daemon.WriteConfig(f, daemon.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Config written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return daemon.WriteConfig(cmd.OutOrStdout(), cfg)
	},
}

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Manage the genesis document",
}

var genesisInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a genesis document",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = filepath.Join(daemon.Home(), "genesis.yaml")
		}
		force, _ := cmd.Flags().GetBool("force")
		admin, _ := cmd.Flags().GetString("admin")

		f, err := createFile(path, force)
		if err != nil {
			return err
		}
		defer f.Close()
		gen := daemon.GenesisFile{
			Admin:    admin,
			Ranks:    map[string]uint64{},
			Balances: map[string]uint64{},
		}
		if err := daemon.WriteGenesis(f, gen); err != nil {
			return fmt.Errorf("write genesis: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Genesis written to %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "   Set storage.genesis in config.toml to use it.")
		return nil
	},
}

var genesisShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Validate and print a genesis document",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Storage.Genesis
		}
		if path == "" {
			return fmt.Errorf("no genesis configured: pass --file or set storage.genesis")
		}
		gen, err := daemon.LoadGenesis(path)
		if err != nil {
			return err
		}
		return daemon.WriteGenesis(cmd.OutOrStdout(), gen)
	},
}

// createFile creates path and its parent directory.
func createFile(path string, force bool) (*os.File, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return os.Create(path)
}
