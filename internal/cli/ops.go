package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/daemon"
	"github.com/ric-network/catalogdao/internal/domain"
)

// ─── Offline tooling ────────────────────────────────────────────────────────
// op and status open the node storage directly. Do not run them against a
// data directory a serving node is using.

func init() {
	rootCmd.AddCommand(opCmd)
	rootCmd.AddCommand(statusCmd)

	opCmd.Flags().String("as", "", "calling account")
	opCmd.Flags().String("args", "", "operation arguments as JSON")
	opCmd.MarkFlagRequired("as")
}

var opCmd = &cobra.Command{
	Use:   "op KIND",
	Short: "Apply one operation to the local ledger",
	Long: `Apply one operation to the local ledger and journal it.

Examples:
  catalogd op token.approve --as alice --args '{"spender":"catalogdao.stakes","amount":30}'
  catalogd op staking.stake --as alice
  catalogd op listing.propose --as alice --args '{"content_ref":"ipfs://app"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runOp,
}

func runOp(cmd *cobra.Command, args []string) error {
	caller, _ := cmd.Flags().GetString("as")
	raw, _ := cmd.Flags().GetString("args")

	var opArgs any
	if raw != "" {
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("--args is not valid JSON: %w", domain.ErrInvalidArgument)
		}
		opArgs = json.RawMessage(raw)
	}

	d, err := openOffline()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Submit(cmd.Context(), domain.Account(caller), domain.OpKind(args[0]), opArgs)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the local ledger summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openOffline()
		if err != nil {
			return err
		}
		defer d.Close()
		return printJSON(cmd, d.Service().Status())
	},
}

// openOffline opens the node without serving, automining or publishing.
func openOffline() (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Chain.Automine = false
	cfg.Events.NATSURL = ""
	logger := newLogger(cfg)
	d, err := daemon.New(cfg, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		return nil, fmt.Errorf("open node: %w", err)
	}
	return d, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
