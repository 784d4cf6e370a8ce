package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	RPCAddress  string `toml:"RPCAddress"`
	Environment string `toml:"Environment"`
	// AssetsFile points at a YAML listing merged after the inline Assets.
	AssetsFile string `toml:"AssetsFile"`

	RPCReadHeaderTimeout int   `toml:"RPCReadHeaderTimeout"`
	RPCReadTimeout       int   `toml:"RPCReadTimeout"`
	RPCWriteTimeout      int   `toml:"RPCWriteTimeout"`
	RPCIdleTimeout       int   `toml:"RPCIdleTimeout"`
	MaxBodyBytes         int64 `toml:"MaxBodyBytes"`

	Lending   LendingParams   `toml:"lending"`
	Assets    []AssetListing  `toml:"assets"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

// Load loads the configuration from path, writing a default file first when
// none exists. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if cfg.AssetsFile != "" {
		assetsPath := cfg.AssetsFile
		if !filepath.IsAbs(assetsPath) {
			assetsPath = filepath.Join(filepath.Dir(path), assetsPath)
		}
		listings, err := LoadAssetListings(assetsPath)
		if err != nil {
			return nil, err
		}
		cfg.Assets = append(cfg.Assets, listings...)
	}

	cfg.applyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh data directory.
func Default() *Config {
	cfg := &Config{
		DataDir:    "./lendledger-data",
		RPCAddress: ":8080",
		Lending: LendingParams{
			LiquidationThreshold: "1",
			SmallAccountUSD:      "100",
			DaysPerYear:          360,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		Log:       LogConfig{Level: "info"},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./lendledger-data"
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if c.RPCReadHeaderTimeout <= 0 {
		c.RPCReadHeaderTimeout = 5
	}
	if c.RPCReadTimeout <= 0 {
		c.RPCReadTimeout = 15
	}
	if c.RPCWriteTimeout <= 0 {
		c.RPCWriteTimeout = 15
	}
	if c.RPCIdleTimeout <= 0 {
		c.RPCIdleTimeout = 60
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.Assets == nil {
		c.Assets = []AssetListing{}
	}
}

// AuthSecret resolves the HMAC secret, preferring the environment variable.
func (c *Config) AuthSecret() string {
	if c == nil {
		return ""
	}
	if env := strings.TrimSpace(c.Auth.HMACSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(c.Auth.HMACSecret)
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
