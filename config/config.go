// Package config loads the yaml configuration and API keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/cointax/internal/services/tax"
	"github.com/vadiminshakov/cointax/pkg/retrier"
)

// API key environment variables.
const (
	EnvBlockchairKey = "BLOCKCHAIRAPIKEY"
	EnvEtherscanKey  = "ETHERSCANAPIKEY"
	EnvCoinGeckoKey  = "CGAPIKEY"
)

const (
	defaultDataDir   = "./data"
	defaultPriceDays = 365
	defaultWebAddr   = ":8080"
	defaultRefresh   = time.Hour
)

// Budget fixed retry budget of one upstream source.
type Budget struct {
	Attempts int
	Delay    time.Duration
}

// Retrier builds a retrier spending this budget.
func (b Budget) Retrier(opts ...retrier.Option) *retrier.Retrier {
	return retrier.Fixed(b.Attempts, b.Delay, opts...)
}

// Budgets retry budgets per source.
type Budgets struct {
	BTC        Budget
	ETHFees    Budget
	LTC        Budget
	Dashboards Budget
	Prices     Budget
}

// Endpoints base URLs of the upstream APIs. Empty values select the public endpoints.
type Endpoints struct {
	Blockchair  string
	Blockstream string
	Etherscan   string
	Blockcypher string
	CoinGecko   string
	Binance     string
	Bybit       string
}

// Keys API keys read from the environment.
type Keys struct {
	Blockchair string
	Etherscan  string
	CoinGecko  string
}

// Tax tax estimate inputs.
type Tax struct {
	// Year reporting year, zero selects the previous calendar year.
	Year        int
	OtherIncome decimal.Decimal
	ShortTerm   tax.Schedule
	LongTerm    tax.Schedule
}

// Web dashboard server settings.
type Web struct {
	Addr string
	// Domain enables HTTPS via autocert when set.
	Domain       string
	CertCacheDir string

	// RefreshInterval how often the server reconciles in the background and how long a report is served from cache.
	RefreshInterval time.Duration
}

// Config validated configuration.
type Config struct {
	DataDir         string
	AddressBookPath string
	PriceCachePath  string
	PriceHistoryDir string
	RunsDir         string
	PriceDays       int
	Endpoints       Endpoints
	Keys            Keys
	Retries         Budgets
	Tax             Tax
	Web             Web
}

// BudgetTmp yaml form of Budget.
type BudgetTmp struct {
	Attempts int           `yaml:"attempts,omitempty"`
	Delay    time.Duration `yaml:"delay,omitempty"`
}

// BracketTmp yaml form of tax.Bracket. An empty ceiling marks the top bracket.
type BracketTmp struct {
	Ceiling string `yaml:"ceiling,omitempty"`
	Rate    string `yaml:"rate"`
}

// ConfigTmp raw yaml document.
type ConfigTmp struct {
	DataDir         string `yaml:"data_dir,omitempty"`
	AddressBookPath string `yaml:"address_book,omitempty"`
	PriceCachePath  string `yaml:"price_cache,omitempty"`
	PriceHistoryDir string `yaml:"price_history_dir,omitempty"`
	RunsDir         string `yaml:"runs_dir,omitempty"`
	PriceDays       int    `yaml:"price_days,omitempty"`

	Endpoints struct {
		Blockchair  string `yaml:"blockchair,omitempty"`
		Blockstream string `yaml:"blockstream,omitempty"`
		Etherscan   string `yaml:"etherscan,omitempty"`
		Blockcypher string `yaml:"blockcypher,omitempty"`
		CoinGecko   string `yaml:"coingecko,omitempty"`
		Binance     string `yaml:"binance,omitempty"`
		Bybit       string `yaml:"bybit,omitempty"`
	} `yaml:"endpoints,omitempty"`

	Retries struct {
		BTC        BudgetTmp `yaml:"btc,omitempty"`
		ETHFees    BudgetTmp `yaml:"eth_fees,omitempty"`
		LTC        BudgetTmp `yaml:"ltc,omitempty"`
		Dashboards BudgetTmp `yaml:"dashboards,omitempty"`
		Prices     BudgetTmp `yaml:"prices,omitempty"`
	} `yaml:"retries,omitempty"`

	Tax struct {
		Year        int          `yaml:"year,omitempty"`
		OtherIncome string       `yaml:"other_income,omitempty"`
		ShortTerm   []BracketTmp `yaml:"short_term,omitempty"`
		LongTerm    []BracketTmp `yaml:"long_term,omitempty"`
	} `yaml:"tax,omitempty"`

	Web struct {
		Addr            string        `yaml:"addr,omitempty"`
		Domain          string        `yaml:"domain,omitempty"`
		CertCacheDir    string        `yaml:"cert_cache_dir,omitempty"`
		RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
	} `yaml:"web,omitempty"`
}

// DefaultBudgets retry budgets used when the config sets none.
func DefaultBudgets() Budgets {
	return Budgets{
		BTC:        Budget{Attempts: 10, Delay: 1100 * time.Millisecond},
		ETHFees:    Budget{Attempts: 10, Delay: 1100 * time.Millisecond},
		LTC:        Budget{Attempts: 5, Delay: 3 * time.Second},
		Dashboards: Budget{Attempts: 3, Delay: 1100 * time.Millisecond},
		Prices:     Budget{Attempts: 3, Delay: 1100 * time.Millisecond},
	}
}

// Default configuration rooted at the default data directory.
func Default() Config {
	cfg, _ := fromTmp(ConfigTmp{})
	return cfg
}

// Load reads the yaml file at path; an empty path or a missing file yields the defaults. API keys always come
// from the environment.
func Load(path string) (Config, error) {
	var tmp ConfigTmp

	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(f, &tmp); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg, err := fromTmp(tmp)
	if err != nil {
		return Config{}, err
	}

	cfg.Keys = Keys{
		Blockchair: os.Getenv(EnvBlockchairKey),
		Etherscan:  os.Getenv(EnvEtherscanKey),
		CoinGecko:  os.Getenv(EnvCoinGeckoKey),
	}

	return cfg, nil
}

func fromTmp(c ConfigTmp) (Config, error) {
	cfg := Config{
		DataDir:         orDefault(c.DataDir, defaultDataDir),
		PriceHistoryDir: c.PriceHistoryDir,
		PriceDays:       c.PriceDays,
		Endpoints: Endpoints{
			Blockchair:  c.Endpoints.Blockchair,
			Blockstream: c.Endpoints.Blockstream,
			Etherscan:   c.Endpoints.Etherscan,
			Blockcypher: c.Endpoints.Blockcypher,
			CoinGecko:   c.Endpoints.CoinGecko,
			Binance:     c.Endpoints.Binance,
			Bybit:       c.Endpoints.Bybit,
		},
		Web: Web{
			Addr:            orDefault(c.Web.Addr, defaultWebAddr),
			Domain:          c.Web.Domain,
			RefreshInterval: c.Web.RefreshInterval,
		},
	}
	cfg.AddressBookPath = orDefault(c.AddressBookPath, filepath.Join(cfg.DataDir, "addresses.json"))
	cfg.PriceCachePath = orDefault(c.PriceCachePath, filepath.Join(cfg.DataDir, "prices.db"))
	cfg.RunsDir = orDefault(c.RunsDir, filepath.Join(cfg.DataDir, "runs"))
	cfg.Web.CertCacheDir = orDefault(c.Web.CertCacheDir, filepath.Join(cfg.DataDir, "certs"))

	if cfg.Web.RefreshInterval == 0 {
		cfg.Web.RefreshInterval = defaultRefresh
	}
	if cfg.Web.RefreshInterval < time.Minute {
		return Config{}, fmt.Errorf("incorrect 'web.refresh_interval' param in yaml config (must be at least 1m): %s", c.Web.RefreshInterval)
	}

	if cfg.PriceDays == 0 {
		cfg.PriceDays = defaultPriceDays
	}
	if cfg.PriceDays < 0 {
		return Config{}, fmt.Errorf("incorrect 'price_days' param in yaml config (must be positive): %d", c.PriceDays)
	}

	defaults := DefaultBudgets()
	budgets := []struct {
		name string
		raw  BudgetTmp
		def  Budget
		dst  *Budget
	}{
		{"btc", c.Retries.BTC, defaults.BTC, &cfg.Retries.BTC},
		{"eth_fees", c.Retries.ETHFees, defaults.ETHFees, &cfg.Retries.ETHFees},
		{"ltc", c.Retries.LTC, defaults.LTC, &cfg.Retries.LTC},
		{"dashboards", c.Retries.Dashboards, defaults.Dashboards, &cfg.Retries.Dashboards},
		{"prices", c.Retries.Prices, defaults.Prices, &cfg.Retries.Prices},
	}
	for _, b := range budgets {
		budget, err := parseBudget(b.name, b.raw, b.def)
		if err != nil {
			return Config{}, err
		}
		*b.dst = budget
	}

	cfg.Tax.Year = c.Tax.Year
	if cfg.Tax.Year < 0 {
		return Config{}, fmt.Errorf("incorrect 'tax.year' param in yaml config: %d", c.Tax.Year)
	}

	cfg.Tax.OtherIncome = decimal.Zero
	if c.Tax.OtherIncome != "" {
		income, err := decimal.NewFromString(c.Tax.OtherIncome)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'tax.other_income' param in yaml config (must be a decimal), error: %w", err)
		}
		if income.IsNegative() {
			return Config{}, fmt.Errorf("incorrect 'tax.other_income' param in yaml config (must not be negative): %s", income)
		}
		cfg.Tax.OtherIncome = income
	}

	var err error
	if cfg.Tax.ShortTerm, err = parseSchedule("tax.short_term", c.Tax.ShortTerm, tax.DefaultShortTerm()); err != nil {
		return Config{}, err
	}
	if cfg.Tax.LongTerm, err = parseSchedule("tax.long_term", c.Tax.LongTerm, tax.DefaultLongTerm()); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseBudget(name string, raw BudgetTmp, def Budget) (Budget, error) {
	b := def
	if raw.Attempts != 0 {
		b.Attempts = raw.Attempts
	}
	if raw.Delay != 0 {
		b.Delay = raw.Delay
	}
	if b.Attempts < 1 {
		return Budget{}, fmt.Errorf("incorrect 'retries.%s.attempts' param in yaml config (must be at least 1): %d", name, b.Attempts)
	}
	if b.Delay < 0 {
		return Budget{}, fmt.Errorf("incorrect 'retries.%s.delay' param in yaml config (must not be negative): %s", name, b.Delay)
	}

	return b, nil
}

func parseSchedule(name string, raw []BracketTmp, def tax.Schedule) (tax.Schedule, error) {
	if len(raw) == 0 {
		return def, nil
	}

	schedule := make(tax.Schedule, 0, len(raw))
	for i, r := range raw {
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("incorrect '%s[%d].rate' param in yaml config (must be a decimal), error: %w", name, i, err)
		}
		b := tax.Bracket{Rate: rate}
		if r.Ceiling != "" {
			ceiling, err := decimal.NewFromString(r.Ceiling)
			if err != nil {
				return nil, fmt.Errorf("incorrect '%s[%d].ceiling' param in yaml config (must be a decimal), error: %w", name, i, err)
			}
			b.Ceiling = decimal.NewNullDecimal(ceiling)
		}
		schedule = append(schedule, b)
	}

	if err := schedule.Validate(); err != nil {
		return nil, fmt.Errorf("incorrect '%s' param in yaml config: %w", name, err)
	}

	return schedule, nil
}

// ToTmp converts the config back into its yaml form, used by the setup wizard. Keys are never written.
func (c Config) ToTmp() ConfigTmp {
	var tmp ConfigTmp
	tmp.DataDir = c.DataDir
	tmp.AddressBookPath = c.AddressBookPath
	tmp.PriceCachePath = c.PriceCachePath
	tmp.PriceHistoryDir = c.PriceHistoryDir
	tmp.RunsDir = c.RunsDir
	tmp.PriceDays = c.PriceDays
	tmp.Endpoints.Blockchair = c.Endpoints.Blockchair
	tmp.Endpoints.Blockstream = c.Endpoints.Blockstream
	tmp.Endpoints.Etherscan = c.Endpoints.Etherscan
	tmp.Endpoints.Blockcypher = c.Endpoints.Blockcypher
	tmp.Endpoints.CoinGecko = c.Endpoints.CoinGecko
	tmp.Endpoints.Binance = c.Endpoints.Binance
	tmp.Endpoints.Bybit = c.Endpoints.Bybit
	tmp.Retries.BTC = BudgetTmp(c.Retries.BTC)
	tmp.Retries.ETHFees = BudgetTmp(c.Retries.ETHFees)
	tmp.Retries.LTC = BudgetTmp(c.Retries.LTC)
	tmp.Retries.Dashboards = BudgetTmp(c.Retries.Dashboards)
	tmp.Retries.Prices = BudgetTmp(c.Retries.Prices)
	tmp.Tax.Year = c.Tax.Year
	tmp.Tax.OtherIncome = c.Tax.OtherIncome.String()
	tmp.Tax.ShortTerm = scheduleTmp(c.Tax.ShortTerm)
	tmp.Tax.LongTerm = scheduleTmp(c.Tax.LongTerm)
	tmp.Web.Addr = c.Web.Addr
	tmp.Web.Domain = c.Web.Domain
	tmp.Web.CertCacheDir = c.Web.CertCacheDir
	tmp.Web.RefreshInterval = c.Web.RefreshInterval

	return tmp
}

// Save writes the config as yaml to path.
func (c Config) Save(path string) error {
	payload, err := yaml.Marshal(c.ToTmp())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	return os.WriteFile(path, payload, 0o644)
}

// ReportingYear the configured tax year, or the previous calendar year of now.
func (c Config) ReportingYear(now time.Time) int {
	if c.Tax.Year > 0 {
		return c.Tax.Year
	}

	return tax.ReportingYear(now)
}

func scheduleTmp(s tax.Schedule) []BracketTmp {
	out := make([]BracketTmp, 0, len(s))
	for _, b := range s {
		bt := BracketTmp{Rate: b.Rate.String()}
		if b.Ceiling.Valid {
			bt.Ceiling = b.Ceiling.Decimal.String()
		}
		out = append(out, bt)
	}

	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
