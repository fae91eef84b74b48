// Package daemon loads configuration and runs the catalog ledger node.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/ric-network/catalogdao/internal/app/ledger"
	"github.com/ric-network/catalogdao/internal/domain"
	"github.com/ric-network/catalogdao/internal/infra/governance"
	"github.com/ric-network/catalogdao/internal/infra/observability"
	"github.com/ric-network/catalogdao/internal/infra/staking"
)

// EnvPrefix prefixes every environment override, e.g. CATALOGDAO_API_PORT.
const EnvPrefix = "catalogdao"

// Config is the node configuration, read from config.toml.
type Config struct {
	API        APIConfig        `toml:"api" envconfig:"api"`
	Chain      ChainConfig      `toml:"chain" envconfig:"chain"`
	Accounts   AccountsConfig   `toml:"accounts" envconfig:"accounts"`
	Governance GovernanceConfig `toml:"governance" envconfig:"governance"`
	Staking    StakingConfig    `toml:"staking" envconfig:"staking"`
	Storage    StorageConfig    `toml:"storage" envconfig:"storage"`
	Events     EventsConfig     `toml:"events" envconfig:"events"`
	Tracing    TracingConfig    `toml:"tracing" envconfig:"tracing"`
	Log        LogConfig        `toml:"log" envconfig:"log"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host           string `toml:"host" envconfig:"host"`
	Port           int    `toml:"port" envconfig:"port"`
	Metrics        bool   `toml:"metrics" envconfig:"metrics"`
	RequestTimeout string `toml:"request_timeout" envconfig:"request_timeout"`
}

// ChainConfig configures the block clock.
type ChainConfig struct {
	Automine      bool   `toml:"automine" envconfig:"automine"`
	BlockInterval string `toml:"block_interval" envconfig:"block_interval"`
}

// AccountsConfig names the system accounts.
type AccountsConfig struct {
	Admin   string `toml:"admin" envconfig:"admin"`
	Engine  string `toml:"engine" envconfig:"engine"`
	Custody string `toml:"custody" envconfig:"custody"`
}

// GovernanceConfig holds voting parameters. Poll periods are in blocks.
type GovernanceConfig struct {
	AcceptanceThreshold uint64 `toml:"acceptance_threshold" envconfig:"acceptance_threshold"`
	RankUpInterval      uint64 `toml:"rank_up_interval" envconfig:"rank_up_interval"`
	RankPollPeriod      uint64 `toml:"rank_poll_period" envconfig:"rank_poll_period"`
	ListingPollPeriod   uint64 `toml:"listing_poll_period" envconfig:"listing_poll_period"`
	RemovalPollPeriod   uint64 `toml:"removal_poll_period" envconfig:"removal_poll_period"`
	GenesisRank         uint64 `toml:"genesis_rank" envconfig:"genesis_rank"`
}

// StakingConfig holds stake and reward amounts. LockPeriod is in blocks.
type StakingConfig struct {
	StakeAmount   uint64 `toml:"stake_amount" envconfig:"stake_amount"`
	LockPeriod    uint64 `toml:"lock_period" envconfig:"lock_period"`
	RewardBase    uint64 `toml:"reward_base" envconfig:"reward_base"`
	FrontendBonus uint64 `toml:"frontend_bonus" envconfig:"frontend_bonus"`
	FeesBonus     uint64 `toml:"fees_bonus" envconfig:"fees_bonus"`
}

// StorageConfig configures persistence. An empty Dir keeps everything in memory.
type StorageConfig struct {
	Dir     string `toml:"dir" envconfig:"dir"`
	Genesis string `toml:"genesis" envconfig:"genesis"`
}

// EventsConfig configures event fan-out. An empty NATSURL disables publishing.
type EventsConfig struct {
	Recent        int    `toml:"recent" envconfig:"recent"`
	NATSURL       string `toml:"nats_url" envconfig:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix" envconfig:"subject_prefix"`
	Buffer        int    `toml:"buffer" envconfig:"buffer"`
}

// TracingConfig configures the in-memory tracer.
type TracingConfig struct {
	Enabled  bool `toml:"enabled" envconfig:"enabled"`
	MaxSpans int  `toml:"max_spans" envconfig:"max_spans"`
}

// LogConfig configures zap. An empty File logs to stderr only.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"level"`
	Development bool   `toml:"development" envconfig:"development"`
	File        string `toml:"file" envconfig:"file"`
	MaxSizeMB   int    `toml:"max_size_mb" envconfig:"max_size_mb"`
	MaxBackups  int    `toml:"max_backups" envconfig:"max_backups"`
}

// Home returns the node home directory: $CATALOGDAO_HOME or ~/.catalogdao.
func Home() string {
	if h := os.Getenv("CATALOGDAO_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".catalogdao"
	}
	return filepath.Join(home, ".catalogdao")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string { return filepath.Join(Home(), "config.toml") }

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	gov := governance.DefaultConfig()
	stk := staking.DefaultConfig()
	acct := ledger.DefaultConfig().Accounts
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8645,
			Metrics:        true,
			RequestTimeout: "30s",
		},
		Chain: ChainConfig{
			Automine:      true,
			BlockInterval: "2s",
		},
		Accounts: AccountsConfig{
			Admin:   acct.Admin.String(),
			Engine:  acct.Engine.String(),
			Custody: acct.Custody.String(),
		},
		Governance: GovernanceConfig{
			AcceptanceThreshold: gov.AcceptanceThreshold,
			RankUpInterval:      gov.RankUpInterval,
			RankPollPeriod:      gov.RankPollPeriod,
			ListingPollPeriod:   gov.ListingPollPeriod,
			RemovalPollPeriod:   gov.RemovalPollPeriod,
			GenesisRank:         10,
		},
		Staking: StakingConfig{
			StakeAmount:   stk.StakeAmount,
			LockPeriod:    stk.LockPeriod,
			RewardBase:    stk.Rewards.Base,
			FrontendBonus: stk.Rewards.FrontendBonus,
			FeesBonus:     stk.Rewards.FeesBonus,
		},
		Storage: StorageConfig{
			Dir: filepath.Join(Home(), "data"),
		},
		Events: EventsConfig{
			Recent:        1024,
			SubjectPrefix: "catalogdao",
			Buffer:        256,
		},
		Tracing: TracingConfig{
			Enabled:  true,
			MaxSpans: 10_000,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
}

// LoadConfig reads path over the defaults and applies environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// WriteConfig encodes cfg as TOML.
func WriteConfig(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range: %w", c.API.Port, domain.ErrInvalidArgument)
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	if _, err := c.BlockInterval(); err != nil {
		return err
	}
	if err := c.Ledger().Governance.Validate(); err != nil {
		return err
	}
	return c.Ledger().Staking.Validate()
}

// Addr returns the API listen address.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port) }

// RequestTimeout parses api.request_timeout.
func (c Config) RequestTimeout() (time.Duration, error) {
	return parseDuration("api.request_timeout", c.API.RequestTimeout)
}

// BlockInterval parses chain.block_interval.
func (c Config) BlockInterval() (time.Duration, error) {
	return parseDuration("chain.block_interval", c.Chain.BlockInterval)
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s %q is not a valid duration: %w", key, s, domain.ErrInvalidArgument)
	}
	return d, nil
}

// Ledger converts the file configuration to the service configuration.
func (c Config) Ledger() ledger.Config {
	out := ledger.DefaultConfig()
	out.Accounts = ledger.Accounts{
		Admin:   domain.Account(c.Accounts.Admin),
		Engine:  domain.Account(c.Accounts.Engine),
		Custody: domain.Account(c.Accounts.Custody),
	}
	out.Governance = governance.Config{
		AcceptanceThreshold: c.Governance.AcceptanceThreshold,
		RankUpInterval:      c.Governance.RankUpInterval,
		RankPollPeriod:      c.Governance.RankPollPeriod,
		ListingPollPeriod:   c.Governance.ListingPollPeriod,
		RemovalPollPeriod:   c.Governance.RemovalPollPeriod,
	}
	out.Staking = staking.Config{
		StakeAmount: c.Staking.StakeAmount,
		LockPeriod:  c.Staking.LockPeriod,
		Rewards: staking.Rewards{
			Base:          c.Staking.RewardBase,
			FrontendBonus: c.Staking.FrontendBonus,
			FeesBonus:     c.Staking.FeesBonus,
		},
	}
	out.GenesisRank = c.Governance.GenesisRank
	out.Tracer = observability.TracerConfig{Enabled: c.Tracing.Enabled, MaxSpans: c.Tracing.MaxSpans}
	out.RecentEvents = c.Events.Recent
	return out
}
