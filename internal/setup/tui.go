package setup

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cointax/config"
	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/internal/storage/addresses"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers raw wizard input.
type Answers struct {
	DataDir   string
	Addresses map[domain.Asset]string
	TaxYear   string
	Income    string
	WebAddr   string
	Domain    string
}

// answersFrom prefills the wizard with the current config and address book.
func answersFrom(cfg config.Config, book domain.AddressBook) Answers {
	a := Answers{
		DataDir:   cfg.DataDir,
		Addresses: make(map[domain.Asset]string, len(domain.Assets)),
		Income:    cfg.Tax.OtherIncome.String(),
		WebAddr:   cfg.Web.Addr,
		Domain:    cfg.Web.Domain,
	}
	if cfg.Tax.Year > 0 {
		a.TaxYear = strconv.Itoa(cfg.Tax.Year)
	}
	for _, asset := range domain.Assets {
		a.Addresses[asset] = strings.Join(book[asset], ", ")
	}

	return a
}

// Apply validates the answers and merges them into cfg.
func Apply(a Answers, cfg config.Config) (config.Config, domain.AddressBook, error) {
	book := make(domain.AddressBook, len(domain.Assets))
	for _, asset := range domain.Assets {
		list, err := ParseAddressList(asset, a.Addresses[asset])
		if err != nil {
			return config.Config{}, nil, err
		}
		if len(list) > 0 {
			book[asset] = list
		}
	}

	year, err := parseYear(a.TaxYear)
	if err != nil {
		return config.Config{}, nil, err
	}
	income, err := parseIncome(a.Income)
	if err != nil {
		return config.Config{}, nil, err
	}

	if dir := strings.TrimSpace(a.DataDir); dir != "" && dir != cfg.DataDir {
		cfg = rebase(cfg, dir)
	}

	cfg.Tax.Year = year
	cfg.Tax.OtherIncome = income
	if addr := strings.TrimSpace(a.WebAddr); addr != "" {
		cfg.Web.Addr = addr
	}
	cfg.Web.Domain = strings.TrimSpace(a.Domain)

	return cfg, book, nil
}

// rebase moves the data directory. Paths left at their default location follow it, custom paths stay.
func rebase(cfg config.Config, dir string) config.Config {
	move := func(path, name string) string {
		if path == filepath.Join(cfg.DataDir, name) {
			return filepath.Join(dir, name)
		}
		return path
	}

	cfg.AddressBookPath = move(cfg.AddressBookPath, "addresses.json")
	cfg.PriceCachePath = move(cfg.PriceCachePath, "prices.db")
	cfg.RunsDir = move(cfg.RunsDir, "runs")
	cfg.Web.CertCacheDir = move(cfg.Web.CertCacheDir, "certs")
	cfg.DataDir = dir

	return cfg
}

// ParseAddressList splits comma, space or newline separated addresses and validates each one.
func ParseAddressList(asset domain.Asset, raw string) ([]string, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	if len(fields) > domain.MaxAddressesPerAsset {
		return nil, fmt.Errorf("%s: at most %d addresses", asset, domain.MaxAddressesPerAsset)
	}

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		canonical, err := domain.NormalizeAddress(asset, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		if domain.NewAddressSet(asset, out).Contains(canonical) {
			return nil, fmt.Errorf("%s: duplicate address %s", asset, canonical)
		}
		out = append(out, canonical)
	}

	return out, nil
}

func parseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 2009 {
		return 0, fmt.Errorf("invalid tax year %q", s)
	}

	return y, nil
}

func parseIncome(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative")
	}

	return d, nil
}

func clearScreen() {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("COINTAX SETUP"))
}

// RunTUI launches the terminal wizard: tracked addresses, tax inputs and dashboard settings. It writes the config
// to cfgPath and the address book to the configured file.
func RunTUI(cfgPath string, cfg config.Config) error {
	store, err := addresses.NewStore(cfg.AddressBookPath)
	if err != nil {
		return err
	}
	book, err := store.Load()
	if err != nil {
		return err
	}

	a := answersFrom(cfg, book)
	var (
		btc     = a.Addresses[domain.BTC]
		eth     = a.Addresses[domain.ETH]
		ltc     = a.Addresses[domain.LTC]
		confirm bool
	)

	clearScreen()
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Track your wallets and estimate last year's crypto taxes.\n"))

	// addresses
	fmt.Println(stepStyle.Render("STEP 1: ADDRESSES"))
	err = huh.NewForm(
		huh.NewGroup(
			addressInput(domain.BTC, &btc),
			addressInput(domain.ETH, &eth),
			addressInput(domain.LTC, &ltc),
		),
	).Run()
	if err != nil {
		return err
	}
	a.Addresses[domain.BTC], a.Addresses[domain.ETH], a.Addresses[domain.LTC] = btc, eth, ltc

	// tax
	clearScreen()
	fmt.Println(stepStyle.Render("STEP 2: TAX"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tax Year").
				Description("Leave empty for the previous calendar year").
				Value(&a.TaxYear).
				Validate(func(s string) error {
					_, err := parseYear(s)
					return err
				}),
			huh.NewInput().
				Title("Other Taxable Income (USD)").
				Description("Selects the bracket the gains fall into").
				Value(&a.Income).
				Validate(func(s string) error {
					_, err := parseIncome(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// storage and dashboard
	clearScreen()
	fmt.Println(stepStyle.Render("STEP 3: STORAGE AND DASHBOARD"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data Directory").
				Description("Address book, price cache and run history live here").
				Value(&a.DataDir),
			huh.NewInput().
				Title("Dashboard Listen Address").
				Value(&a.WebAddr),
			huh.NewInput().
				Title("Public Domain").
				Description("Optional, enables HTTPS with automatic certificates").
				Value(&a.Domain),
		),
	).Run()
	if err != nil {
		return err
	}

	next, nextBook, err := Apply(a, cfg)
	if err != nil {
		return err
	}

	// confirmation
	clearScreen()
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary(next, nextBook)))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := next.Save(cfgPath); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	nextStore, err := addresses.NewStore(next.AddressBookPath)
	if err != nil {
		return err
	}
	if err := nextStore.Replace(nextBook); err != nil {
		return fmt.Errorf("failed to save address book: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\n✓ Addresses saved to %s", cfgPath, nextStore.Path())))
	return nil
}

func addressInput(asset domain.Asset, value *string) *huh.Input {
	return huh.NewInput().
		Title(asset.Name() + " Addresses").
		Description(fmt.Sprintf("Up to %d, separated by commas", domain.MaxAddressesPerAsset)).
		Value(value).
		Validate(func(s string) error {
			_, err := ParseAddressList(asset, s)
			return err
		})
}

func summary(cfg config.Config, book domain.AddressBook) string {
	var b strings.Builder
	for _, asset := range domain.Assets {
		fmt.Fprintf(&b, "%s: %d address(es)\n", asset, len(book[asset]))
	}
	year := "previous calendar year"
	if cfg.Tax.Year > 0 {
		year = strconv.Itoa(cfg.Tax.Year)
	}
	fmt.Fprintf(&b, "Tax year: %s\nOther income: %s USD\n", year, cfg.Tax.OtherIncome)
	fmt.Fprintf(&b, "Data dir: %s\nDashboard: %s", cfg.DataDir, cfg.Web.Addr)
	if cfg.Web.Domain != "" {
		fmt.Fprintf(&b, " (https://%s)", cfg.Web.Domain)
	}

	return b.String()
}
