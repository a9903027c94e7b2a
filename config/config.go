package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Asset declares one allow-listed collateral token and the price feed that
// values it. SimPrice seeds the in-process feed for local runs, as an
// 8-decimal fixed-point USD price.
type Asset struct {
	Symbol    string `toml:"Symbol"`
	Address   string `toml:"Address"`
	PriceFeed string `toml:"PriceFeed"`
	SimPrice  string `toml:"SimPrice,omitempty"`
}

type Config struct {
	ListenAddress string  `toml:"ListenAddress"`
	DataDir       string  `toml:"DataDir"`
	Environment   string  `toml:"Environment"`
	ModuleAddress string  `toml:"ModuleAddress"`
	MaxPriceAge   string  `toml:"MaxPriceAge"`
	Assets        []Asset `toml:"assets"`
}

// Load reads the configuration from the given path, creating a commented
// default file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks address syntax and the asset/feed pairing. The engine
// re-validates list lengths at construction; this catches malformed entries
// before they reach it.
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one collateral asset is required")
	}
	if c.ModuleAddress != "" && !common.IsHexAddress(c.ModuleAddress) {
		return fmt.Errorf("config: invalid module address %q", c.ModuleAddress)
	}
	if c.MaxPriceAge != "" {
		if _, err := time.ParseDuration(c.MaxPriceAge); err != nil {
			return fmt.Errorf("config: invalid MaxPriceAge: %w", err)
		}
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for i, asset := range c.Assets {
		if !common.IsHexAddress(asset.Address) {
			return fmt.Errorf("config: asset %d: invalid address %q", i, asset.Address)
		}
		if !common.IsHexAddress(asset.PriceFeed) {
			return fmt.Errorf("config: asset %d: invalid price feed %q", i, asset.PriceFeed)
		}
		key := strings.ToLower(asset.Address)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("config: asset %d: duplicate address %q", i, asset.Address)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// AssetAddresses returns the paired asset and feed address lists in the
// configured order.
func (c *Config) AssetAddresses() (assets, feeds []common.Address) {
	for _, asset := range c.Assets {
		assets = append(assets, common.HexToAddress(asset.Address))
		feeds = append(feeds, common.HexToAddress(asset.PriceFeed))
	}
	return assets, feeds
}

// PriceAge parses the staleness window, falling back to zero when unset so
// the engine default applies.
func (c *Config) PriceAge() time.Duration {
	if c.MaxPriceAge == "" {
		return 0
	}
	age, err := time.ParseDuration(c.MaxPriceAge)
	if err != nil {
		return 0
	}
	return age
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8546"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8546",
		DataDir:       "./dsc-data",
		Environment:   "local",
		ModuleAddress: "0x000000000000000000000000000000000000d5c0",
		Assets: []Asset{
			{
				Symbol:    "WETH",
				Address:   "0x0000000000000000000000000000000000000001",
				PriceFeed: "0x0000000000000000000000000000000000000101",
				SimPrice:  "200000000000", // $2000, 8 decimals
			},
			{
				Symbol:    "WBTC",
				Address:   "0x0000000000000000000000000000000000000002",
				PriceFeed: "0x0000000000000000000000000000000000000102",
				SimPrice:  "3000000000000", // $30000, 8 decimals
			},
		},
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
