package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"MemberReserve/internal/ledger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RESERVED_"

// Config holds all application configuration.
type Config struct {
	Server     Server     `yaml:"server"`
	Log        Log        `yaml:"log"`
	Database   Database   `yaml:"database"`
	Accounts   Accounts   `yaml:"accounts"`
	Pricing    Pricing    `yaml:"pricing"`
	Governance Governance `yaml:"governance"`
	Yield      Yield      `yaml:"yield"`
	Schedule   Schedule   `yaml:"schedule"`
	Telegram   Telegram   `yaml:"telegram"`
	Proxy      string     `yaml:"proxy" env:"HTTPS_PROXY,unset"`
}

type Server struct {
	Addr  string `yaml:"addr" env:"SERVER_ADDR"`
	Debug bool   `yaml:"debug" env:"SERVER_DEBUG"`
}

type Log struct {
	// Mode is dev or prod.
	Mode      string `yaml:"mode" env:"LOG_MODE"`
	Level     string `yaml:"level" env:"LOG_LEVEL"`
	SentryDSN string `yaml:"sentry_dsn" env:"SENTRY_DSN"`
}

type Database struct {
	// Driver is sqlite, file (JSON state file) or memory.
	Driver     string `yaml:"driver" env:"DB_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	StateFile  string `yaml:"state_file" env:"STATE_FILE"`
}

type Accounts struct {
	// Deployer proposes by default.
	Deployer ledger.Address `yaml:"deployer" env:"DEPLOYER"`
	// Reserve is the account records are held under after an exit.
	Reserve ledger.Address `yaml:"reserve" env:"RESERVE_ADDRESS"`
	// Governor is the account the bootstrap governor acts as.
	Governor ledger.Address `yaml:"governor" env:"GOVERNOR_ADDRESS"`
	// Owner initially controls the registry and the reserve. Defaults to Governor so a
	// passing vote can hand control over.
	Owner ledger.Address `yaml:"owner" env:"OWNER"`
	// YieldRecipient is where claimed yield goes. Empty keeps yield in the reserve.
	YieldRecipient ledger.Address `yaml:"yield_recipient" env:"YIELD_RECIPIENT"`
}

type Pricing struct {
	TargetPrice   ledger.Amount   `yaml:"target_price" env:"TARGET_PRICE"`
	Decay         decimal.Decimal `yaml:"decay" env:"PRICE_DECAY"`
	PerDay        decimal.Decimal `yaml:"per_day" env:"PER_DAY"`
	ReferenceTime time.Time       `yaml:"reference_time" env:"REFERENCE_TIME"`
	FloorEnabled  *bool           `yaml:"floor_enabled" env:"FLOOR_ENABLED"`
}

type Governance struct {
	Proposer     ledger.Address `yaml:"proposer" env:"PROPOSER"`
	QuorumBps    uint64         `yaml:"quorum_bps" env:"QUORUM_BPS"`
	VotingPeriod time.Duration  `yaml:"voting_period" env:"VOTING_PERIOD"`
	WeightMode   string         `yaml:"weight_mode" env:"WEIGHT_MODE"`
}

type Yield struct {
	// DripAmount is credited to the yield source on every DripCron tick.
	DripAmount ledger.Amount `yaml:"drip_amount" env:"YIELD_DRIP_AMOUNT"`
	DripCron   string        `yaml:"drip_cron" env:"YIELD_DRIP_CRON"`
}

type Schedule struct {
	ClaimCron  string `yaml:"claim_cron" env:"CRON_CLAIM"`
	SettleCron string `yaml:"settle_cron" env:"CRON_SETTLE"`
}

type Telegram struct {
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN,unset"`
	ChatID   string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

// Enabled reports whether notifications should be sent.
func (t Telegram) Enabled() bool { return t.BotToken != "" && t.ChatID != "" }

// Load reads config from a YAML file, then applies environment variable overrides,
// then defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "prod"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/member_reserve.db"
	}
	if c.Database.StateFile == "" {
		c.Database.StateFile = "data/state.json"
	}
	if c.Accounts.Owner == ledger.ZeroAddress {
		c.Accounts.Owner = c.Accounts.Governor
	}
	if c.Governance.Proposer == ledger.ZeroAddress {
		c.Governance.Proposer = c.Accounts.Deployer
	}
	if c.Pricing.TargetPrice.IsZero() {
		c.Pricing.TargetPrice = ledger.MustParseEther("0.01")
	}
	if c.Pricing.Decay.IsZero() {
		c.Pricing.Decay = decimal.RequireFromString("0.31")
	}
	if c.Pricing.PerDay.IsZero() {
		c.Pricing.PerDay = decimal.NewFromInt(3)
	}
	if c.Pricing.FloorEnabled == nil {
		on := true
		c.Pricing.FloorEnabled = &on
	}
	if c.Governance.QuorumBps == 0 {
		c.Governance.QuorumBps = 1000
	}
	if c.Governance.VotingPeriod == 0 {
		c.Governance.VotingPeriod = 7 * 24 * time.Hour
	}
	if c.Governance.WeightMode == "" {
		c.Governance.WeightMode = "live"
	}
	if c.Schedule.ClaimCron == "" {
		c.Schedule.ClaimCron = "0 0 * * * *"
	}
	if c.Schedule.SettleCron == "" {
		c.Schedule.SettleCron = "0 */5 * * * *"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Accounts.Deployer == ledger.ZeroAddress {
		return fmt.Errorf("accounts.deployer is required")
	}
	if c.Accounts.Reserve == ledger.ZeroAddress {
		return fmt.Errorf("accounts.reserve is required")
	}
	if c.Accounts.Governor == ledger.ZeroAddress {
		return fmt.Errorf("accounts.governor is required")
	}
	if c.Accounts.Reserve == c.Accounts.Governor {
		return fmt.Errorf("accounts.reserve and accounts.governor must differ")
	}
	switch c.Log.Mode {
	case "dev", "prod":
	default:
		return fmt.Errorf("log.mode must be dev or prod, got %q", c.Log.Mode)
	}
	switch c.Database.Driver {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite, file or memory, got %q", c.Database.Driver)
	}
	if !c.Pricing.Decay.IsPositive() || c.Pricing.Decay.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("pricing.decay must be in (0, 1)")
	}
	if !c.Pricing.PerDay.IsPositive() {
		return fmt.Errorf("pricing.per_day must be positive")
	}
	if c.Governance.QuorumBps > 10000 {
		return fmt.Errorf("governance.quorum_bps must not exceed 10000")
	}
	if c.Governance.VotingPeriod < 0 {
		return fmt.Errorf("governance.voting_period must be positive")
	}
	switch c.Governance.WeightMode {
	case "live", "snapshot":
	default:
		return fmt.Errorf("governance.weight_mode must be live or snapshot, got %q", c.Governance.WeightMode)
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"schedule.claim_cron":  c.Schedule.ClaimCron,
		"schedule.settle_cron": c.Schedule.SettleCron,
		"yield.drip_cron":      c.Yield.DripCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}
