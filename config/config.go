package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"metabond/crypto"
)

const (
	defaultSecretEnv = "METABOND_RPC_SECRET"
	minSecretBytes   = 32
)

// Config is the daemon configuration file.
type Config struct {
	// Admin owns every engine. Empty means the operator key address.
	Admin       string       `toml:"Admin"`
	PayoutToken string       `toml:"PayoutToken"`
	Pauses      []string     `toml:"Pauses"`
	Node        Node         `toml:"node"`
	Auth        Auth         `toml:"auth"`
	Telemetry   Telemetry    `toml:"telemetry"`
	Pricing     Pricing      `toml:"pricing"`
	Treasury    Treasury     `toml:"treasury"`
	Distributor Distributor  `toml:"distributor"`
	Staking     Staking      `toml:"staking"`
	Router      Router       `toml:"router"`
	Tokens      []Token      `toml:"tokens"`
	Allocations []Allocation `toml:"allocations"`
	Valuators   []Valuator   `toml:"valuators"`
	Bonds       []Bond       `toml:"bonds"`
	Prices      []Price      `toml:"prices"`
	Pools       []Pool       `toml:"pools"`
}

// Load reads the configuration at path, writing a default file first when
// none exists. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := persist(path, Default()); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config: %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if strings.TrimSpace(c.Node.DataDir) == "" {
		c.Node.DataDir = filepath.Join(baseDir, "metabond-data")
	}
	if strings.TrimSpace(c.Node.RPCAddress) == "" {
		c.Node.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.Node.JournalPath) == "" {
		c.Node.JournalPath = filepath.Join(c.Node.DataDir, "events.db")
	}
	if strings.TrimSpace(c.Node.KeystorePath) == "" {
		c.Node.KeystorePath = filepath.Join(c.Node.DataDir, "operator.keystore")
	}
	if c.Node.RPCReadTimeout <= 0 {
		c.Node.RPCReadTimeout = 15
	}
	if c.Node.RPCWriteTimeout <= 0 {
		c.Node.RPCWriteTimeout = 15
	}
	if c.Node.RateLimit > 0 && c.Node.RateBurst <= 0 {
		c.Node.RateBurst = int(c.Node.RateLimit) * 2
		if c.Node.RateBurst == 0 {
			c.Node.RateBurst = 1
		}
	}
	if c.Staking.WarmupEpochs == 0 {
		c.Staking.WarmupEpochs = 1
	}
	if strings.TrimSpace(c.Auth.SecretEnv) == "" {
		c.Auth.SecretEnv = defaultSecretEnv
	}
	if strings.TrimSpace(c.Auth.ScopeClaim) == "" {
		c.Auth.ScopeClaim = "scope"
	}
	if strings.TrimSpace(c.Auth.AdminScope) == "" {
		c.Auth.AdminScope = "admin"
	}
	if c.Auth.ClockSkew == 0 {
		c.Auth.ClockSkew = 120
	}
}

// Default returns a single-market development deployment.
func Default() *Config {
	first := time.Now().UTC().Truncate(time.Hour).Add(8 * time.Hour)
	return &Config{
		PayoutToken: "D33D",
		Node: Node{
			DataDir:        "./metabond-data",
			RPCAddress:     ":8080",
			Environment:    "local",
			LogLevel:       "info",
			RateLimit:      20,
			RateBurst:      40,
			RebaseInterval: 60,
		},
		Auth: Auth{
			SecretEnv:  defaultSecretEnv,
			Issuer:     "metabondd",
			Audience:   "metabond-rpc",
			ScopeClaim: "scope",
			AdminScope: "admin",
			ClockSkew:  120,
		},
		Tokens: []Token{
			{Symbol: "D33D", Name: "D33D", Decimals: 18},
			{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Symbol: "USM", Name: "USM", Decimals: 18},
		},
		Treasury: Treasury{ReserveToken: "USDC", PayoutPrice: "1"},
		Bonds: []Bond{{
			Name:            "usdc",
			Principal:       "USDC",
			Class:           "reserve",
			ControlVariable: 600,
			VestingSeconds:  5 * 86_400,
			MinimumPrice:    "0.95",
			MaxPayout:       1_000,
			MaxDebt:         "1000000",
		}},
		Distributor: Distributor{
			EpochSeconds: 28_800,
			FirstEpoch:   first,
			Recipients:   []Recipient{{Rate: 30}},
		},
		Staking: Staking{
			ShareToken:       "SD33D",
			RewardAsset:      "USM",
			EpochSeconds:     28_800,
			FirstEpochNumber: 1,
			FirstEpoch:       first,
			WarmupEpochs:     1,
			RewardLimit:      "1000",
			Index:            "1",
		},
		Prices: []Price{
			{Asset: "D33D", Price: "1"},
			{Asset: "USM", Price: "1"},
		},
	}
}

// OperatorKey opens or creates the operator keystore at Node.KeystorePath,
// unlocking it with the passphrase returned by passphrase.
func (c *Config) OperatorKey(passphrase func() (string, error)) (*crypto.PrivateKey, bool, error) {
	secret := ""
	if passphrase != nil {
		var err error
		if secret, err = passphrase(); err != nil {
			return nil, false, fmt.Errorf("config: operator passphrase: %w", err)
		}
	}
	return crypto.LoadOrCreateOperatorKey(c.Node.KeystorePath, secret)
}

// AuthSecret reads the API signing secret from the variable named by
// Auth.SecretEnv.
func (c *Config) AuthSecret(lookup func(string) (string, bool)) ([]byte, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw, ok := lookup(c.Auth.SecretEnv)
	secret := strings.TrimSpace(raw)
	if !ok || secret == "" {
		return nil, fmt.Errorf("config: API signing secret required; set %s", c.Auth.SecretEnv)
	}
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("config: %s must hold at least %d bytes", c.Auth.SecretEnv, minSecretBytes)
	}
	return []byte(secret), nil
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
