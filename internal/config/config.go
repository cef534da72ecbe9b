package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-yaml/yaml"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/internal/domain"
)

type Config struct {
	Server Server `yaml:"server"`
	Wallet Wallet `yaml:"wallet"`
}

type Server struct {
	Listen        string `yaml:"listen" env:"WALLET_LISTEN"`
	PostgresDsn   string `yaml:"postgresDsn" env:"WALLET_POSTGRES_DSN"`
	RedisAddr     string `yaml:"redisAddr" env:"WALLET_REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"WALLET_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redisDB" env:"WALLET_REDIS_DB"`
	MemcachedAddr string `yaml:"memcachedAddr" env:"WALLET_MEMCACHED_ADDR"`
	EnableTrace   bool   `yaml:"enableTrace" env:"WALLET_ENABLE_TRACE"`
	TraceEndpoint string `yaml:"traceEndpoint" env:"WALLET_TRACE_ENDPOINT"`
}

type Wallet struct {
	// ClientURL is the modular wallet base url; the chain endpoint is ClientURL/ChainName.
	ClientURL string `yaml:"clientUrl" env:"WALLET_CLIENT_URL"`
	ClientKey string `yaml:"clientKey" env:"WALLET_CLIENT_KEY"`
	ChainName string `yaml:"chainName" env:"WALLET_CHAIN_NAME"`

	EntryPoint string `yaml:"entryPoint" env:"WALLET_ENTRY_POINT"`
	Factory    string `yaml:"factory" env:"WALLET_FACTORY_ADDRESS"`

	USDCAddress  string           `yaml:"usdcAddress" env:"WALLET_USDC_ADDRESS"`
	USDCDecimals uint8            `yaml:"usdcDecimals" env:"WALLET_USDC_DECIMALS"`
	Currencies   []CurrencyConfig `yaml:"currencies"`

	Sponsored           bool           `yaml:"sponsored" env:"WALLET_SPONSORED"`
	PaymasterContext    map[string]any `yaml:"paymasterContext"`
	ConfirmationTimeout time.Duration  `yaml:"confirmationTimeout" env:"WALLET_CONFIRMATION_TIMEOUT"`
	PollInterval        time.Duration  `yaml:"pollInterval" env:"WALLET_POLL_INTERVAL"`
	CeremonyTimeout     time.Duration  `yaml:"ceremonyTimeout" env:"WALLET_CEREMONY_TIMEOUT"`
	AddressCacheTTL     time.Duration  `yaml:"addressCacheTTL" env:"WALLET_ADDRESS_CACHE_TTL"`

	PortfolioEndpoint string `yaml:"portfolioEndpoint" env:"WALLET_PORTFOLIO_ENDPOINT"`
	PortfolioKey      string `yaml:"portfolioKey" env:"WALLET_PORTFOLIO_KEY"`
}

type CurrencyConfig struct {
	Code     string `yaml:"code"`
	Contract string `yaml:"contract"`
	Decimals uint8  `yaml:"decimals"`
	Native   bool   `yaml:"native"`
}

// Load reads the YAML file at path (optional when empty) and overlays WALLET_* environment variables.
func Load(path string) (Config, error) {
	var config Config

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer file.Close()

		err = yaml.NewDecoder(file).Decode(&config)
		if err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&config); err != nil {
		return Config{}, err
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	if c.Wallet.EntryPoint == "" {
		c.Wallet.EntryPoint = passkeywallet.EntryPointV07
	}
	if c.Wallet.USDCDecimals == 0 {
		c.Wallet.USDCDecimals = 6
	}
	if c.Wallet.PollInterval <= 0 {
		c.Wallet.PollInterval = 2 * time.Second
	}
	if c.Wallet.ConfirmationTimeout <= 0 {
		c.Wallet.ConfirmationTimeout = 2 * time.Minute
	}
	if c.Wallet.CeremonyTimeout <= 0 {
		c.Wallet.CeremonyTimeout = 2 * time.Minute
	}
	if c.Wallet.AddressCacheTTL <= 0 {
		c.Wallet.AddressCacheTTL = time.Hour
	}
}

// Configured reports whether the modular transport can be built.
func (w Wallet) Configured() bool {
	return w.ClientURL != "" && w.ChainName != "" && w.ClientKey != ""
}

// AccountLockTTL bounds how long one transfer may hold its account lease. The
// lease spans the signing ceremony and the receipt wait, plus a minute for the
// bundler and paymaster round trips.
func (w Wallet) AccountLockTTL() time.Duration {
	return w.CeremonyTimeout + w.ConfirmationTimeout + time.Minute
}

// ChainEndpoint is the chain-qualified modular transport url.
func (w Wallet) ChainEndpoint() string {
	return strings.TrimRight(w.ClientURL, "/") + "/" + w.ChainName
}

// RedactedClientURL keeps the first 10 characters of the client url for logging.
func (w Wallet) RedactedClientURL() string {
	if w.ClientURL == "" {
		return "Not set"
	}
	if len(w.ClientURL) <= 10 {
		return w.ClientURL + "..."
	}
	return w.ClientURL[:10] + "..."
}

// CurrencyRegistry builds the registry from the configured currencies. The
// USDC shorthand fields add a USDC entry unless one is listed explicitly.
func (w Wallet) CurrencyRegistry() (*domain.CurrencyRegistry, error) {
	currencies := make([]domain.Currency, 0, len(w.Currencies)+1)
	hasUSDC := false
	for _, cc := range w.Currencies {
		if !cc.Native && !passkeywallet.IsAddress(cc.Contract) {
			return nil, fmt.Errorf("currency %s: invalid contract address %q", cc.Code, cc.Contract)
		}
		if strings.EqualFold(cc.Code, "USDC") {
			hasUSDC = true
		}
		currencies = append(currencies, domain.Currency{
			Code:     cc.Code,
			Contract: common.HexToAddress(cc.Contract),
			Decimals: cc.Decimals,
			Native:   cc.Native,
		})
	}
	if !hasUSDC && w.USDCAddress != "" {
		if !passkeywallet.IsAddress(w.USDCAddress) {
			return nil, fmt.Errorf("invalid USDC address %q", w.USDCAddress)
		}
		currencies = append(currencies, domain.Currency{
			Code:     "USDC",
			Contract: common.HexToAddress(w.USDCAddress),
			Decimals: w.USDCDecimals,
		})
	}
	return domain.NewCurrencyRegistry(currencies...)
}
