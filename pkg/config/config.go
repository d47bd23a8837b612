package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/yurifrl/paybills/pkg/parser"
)

const (
	EnvPrefix         = "PAYBILLS"
	DefaultConfigFile = "config.yaml"
	DefaultTokenEnv   = "YNAB_TOKEN"

	LedgerYNAB   = "ynab"
	LedgerMemory = "memory"
)

type Config struct {
	Workbook    string    `mapstructure:"workbook"`
	Sheet       string    `mapstructure:"sheet"`
	Output      string    `mapstructure:"output"`
	SkipLedger  bool      `mapstructure:"skip_ledger"`
	Verbose     bool      `mapstructure:"verbose"`
	Ledger      Ledger    `mapstructure:"ledger"`
	Journal     Journal   `mapstructure:"journal"`
	Fields      Fields    `mapstructure:"fields"`
	Exclusion   Exclusion `mapstructure:"exclusion"`
	IDSeparator string    `mapstructure:"id_separator"`
}

type Ledger struct {
	Kind            string `mapstructure:"kind" validate:"oneof=ynab memory"`
	BudgetID        string `mapstructure:"budget_id" validate:"required_if=Kind ynab"`
	AccountID       string `mapstructure:"account_id" validate:"required_if=Kind ynab"`
	TokenEnv        string `mapstructure:"token_env"`
	RequestsPerHour int    `mapstructure:"requests_per_hour" validate:"gte=0"`

	// Memory seeds the in-process ledger used for rehearsals.
	Memory MemoryLedger `mapstructure:"memory"`
}

type MemoryLedger struct {
	Payments    []MemoryPayment    `mapstructure:"payments" validate:"dive"`
	Obligations []MemoryObligation `mapstructure:"obligations" validate:"dive"`
}

type MemoryPayment struct {
	ID     string `mapstructure:"id" validate:"required"`
	Date   string `mapstructure:"date" validate:"required,datetime=2006-01-02"`
	Amount string `mapstructure:"amount" validate:"required,numeric"`
	Vendor string `mapstructure:"vendor"`
}

type MemoryObligation struct {
	ID        string `mapstructure:"id" validate:"required"`
	Vendor    string `mapstructure:"vendor" validate:"required"`
	AmountDue string `mapstructure:"amount_due" validate:"required,numeric"`
}

// Token reads the ledger API token from the configured environment variable.
func (l Ledger) Token() string {
	return os.Getenv(l.TokenEnv)
}

type Journal struct {
	Path string `mapstructure:"path"`
}

// Fields override the header aliases per source.
type Fields struct {
	External parser.Fields `mapstructure:"external"`
	Ledger   parser.Fields `mapstructure:"ledger"`
}

type Exclusion struct {
	Markers []string `mapstructure:"markers"`
	Fields  []string `mapstructure:"fields"`
}

// ExternalFields is the alias table for the payment workbook.
func (c *Config) ExternalFields() parser.Fields {
	f := parser.ExternalFields().Merge(c.Fields.External)
	if len(c.Exclusion.Fields) > 0 {
		f.Exclude = c.Exclusion.Fields
	}
	if c.IDSeparator != "" {
		f.Separator = c.IDSeparator
	}
	return f
}

// LedgerFields is the alias table for records read back from the ledger.
func (c *Config) LedgerFields() parser.Fields {
	f := parser.LedgerFields().Merge(c.Fields.Ledger)
	if c.IDSeparator != "" {
		f.Separator = c.IDSeparator
	}
	return f
}

// Markers returns the exclusion markers, falling back to the defaults.
func (c *Config) Markers() []string {
	if len(c.Exclusion.Markers) > 0 {
		return c.Exclusion.Markers
	}
	return parser.DefaultMarkers
}

// Validate checks the config. Ledger credentials are only required when the
// ledger is used.
func (c *Config) Validate() error {
	v := validator.New()
	var err error
	if c.SkipLedger {
		err = v.StructExcept(c, "Ledger.BudgetID", "Ledger.AccountID")
	} else {
		err = v.Struct(c)
	}
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Build loads .env, the config file, PAYBILLS_* environment variables and
// the flags set on the command line, in increasing precedence. An empty
// cfgFile reads config.yaml from the working directory when it exists.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	} else if _, err := os.Stat(DefaultConfigFile); err == nil {
		v.SetConfigFile(DefaultConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", DefaultConfigFile, err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sheet", "vendor")
	v.SetDefault("output", "report.json")
	v.SetDefault("skip_ledger", false)
	v.SetDefault("verbose", false)
	v.SetDefault("ledger.kind", LedgerYNAB)
	v.SetDefault("ledger.budget_id", "")
	v.SetDefault("ledger.account_id", "")
	v.SetDefault("ledger.token_env", DefaultTokenEnv)
	v.SetDefault("ledger.requests_per_hour", 180)
	v.SetDefault("journal.path", "")
	v.SetDefault("id_separator", "")
	v.SetDefault("workbook", "")
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"workbook":    "workbook",
	"sheet":       "sheet",
	"output":      "output",
	"skip-ledger": "skip_ledger",
	"verbose":     "verbose",
	"journal":     "journal.path",
	"budget":      "ledger.budget_id",
	"account":     "ledger.account_id",
	"ledger":      "ledger.kind",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
