package config

import "time"

// Node holds daemon process settings.
type Node struct {
	DataDir     string `toml:"DataDir"`
	RPCAddress  string `toml:"RPCAddress"`
	JournalPath string `toml:"JournalPath"`
	// KeystorePath locates the operator key. Empty means DataDir/operator.keystore.
	KeystorePath string `toml:"KeystorePath"`
	// PassphraseEnv names the environment variable holding the keystore
	// passphrase.
	PassphraseEnv string `toml:"PassphraseEnv"`
	Environment   string `toml:"Environment"`
	LogLevel      string `toml:"LogLevel"`
	// LogFile mirrors the log to a rotated file when set.
	LogFile string `toml:"LogFile"`
	// RateLimit is the sustained per-client request rate; zero disables it.
	RateLimit       float64 `toml:"RateLimit"`
	RateBurst       int     `toml:"RateBurst"`
	RPCReadTimeout  int     `toml:"RPCReadTimeout"`
	RPCWriteTimeout int     `toml:"RPCWriteTimeout"`
	// RebaseInterval drives the background rebase loop in seconds; zero
	// disables it.
	RebaseInterval int `toml:"RebaseInterval"`
}

// Auth configures bearer-token verification on the HTTP API.
type Auth struct {
	// SecretEnv names the environment variable holding the HMAC signing
	// secret.
	SecretEnv  string `toml:"SecretEnv"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
	ScopeClaim string `toml:"ScopeClaim"`
	AdminScope string `toml:"AdminScope"`
	// ClockSkew is the tolerated drift on exp and iat, in seconds.
	ClockSkew int `toml:"ClockSkew"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Traces   bool              `toml:"Traces"`
	Metrics  bool              `toml:"Metrics"`
	Headers  map[string]string `toml:"Headers"`
}

// Pricing bounds the operator price book.
type Pricing struct {
	MaxAgeSeconds   uint32 `toml:"MaxAgeSeconds"`
	MaxDeviationBps uint32 `toml:"MaxDeviationBps"`
}

// Token registers an asset.
type Token struct {
	Symbol      string `toml:"Symbol"`
	Name        string `toml:"Name"`
	Decimals    uint8  `toml:"Decimals"`
	NonFungible bool   `toml:"NonFungible"`
}

// Allocation credits an account at genesis. Amount is in whole tokens.
type Allocation struct {
	Account string  `toml:"Account"`
	Token   string  `toml:"Token"`
	Amount  string  `toml:"Amount"`
	IDs     []int64 `toml:"IDs"`
}

// Treasury seeds the reserve ledger. PayoutPrice is the reference value of
// one payout token.
type Treasury struct {
	ReserveToken string `toml:"ReserveToken"`
	PayoutPrice  string `toml:"PayoutPrice"`
}

// Valuator declares a valuation provider.
type Valuator struct {
	Name              string `toml:"Name"`
	Kind              string `toml:"Kind"`
	Markdown          uint64 `toml:"Markdown"`
	Asset             string `toml:"Asset"`
	AssetDecimals     uint8  `toml:"AssetDecimals"`
	Pair              string `toml:"Pair"`
	Reference         string `toml:"Reference"`
	ReferenceDecimals uint8  `toml:"ReferenceDecimals"`
	QuoteAsset        string `toml:"QuoteAsset"`
	Price             string `toml:"Price"`
	Oracle            string `toml:"Oracle"`
}

// Bond declares a bond market.
type Bond struct {
	Name            string `toml:"Name"`
	Principal       string `toml:"Principal"`
	Class           string `toml:"Class"`
	Valuator        string `toml:"Valuator"`
	DAO             string `toml:"DAO"`
	ControlVariable uint64 `toml:"ControlVariable"`
	VestingSeconds  uint64 `toml:"VestingSeconds"`
	MinimumPrice    string `toml:"MinimumPrice"`
	// MaxPayout is in thousandths of a percent of payout supply.
	MaxPayout uint64 `toml:"MaxPayout"`
	// Fee is in basis points of payout.
	Fee         uint64 `toml:"Fee"`
	MaxDebt     string `toml:"MaxDebt"`
	InitialDebt string `toml:"InitialDebt"`
}

// Recipient is a distributor emission target. An empty Receiver means the
// stake pool.
type Recipient struct {
	Receiver string `toml:"Receiver"`
	Rate     uint64 `toml:"Rate"`
}

// Distributor seeds the emission schedule.
type Distributor struct {
	EpochSeconds uint64      `toml:"EpochSeconds"`
	FirstEpoch   time.Time   `toml:"FirstEpoch"`
	Recipients   []Recipient `toml:"recipients"`
}

// Staking seeds the stake pool.
type Staking struct {
	ShareToken       string    `toml:"ShareToken"`
	RewardAsset      string    `toml:"RewardAsset"`
	EpochSeconds     uint64    `toml:"EpochSeconds"`
	FirstEpochNumber uint64    `toml:"FirstEpochNumber"`
	FirstEpoch       time.Time `toml:"FirstEpoch"`
	WarmupEpochs     uint64    `toml:"WarmupEpochs"`
	RewardLimit      string    `toml:"RewardLimit"`
	Index            string    `toml:"Index"`
}

// Router bounds the conversion router.
type Router struct {
	MaxMint string `toml:"MaxMint"`
}

// Price publishes an asset quote at startup.
type Price struct {
	Asset   string `toml:"Asset"`
	Price   string `toml:"Price"`
	Average string `toml:"Average"`
}

// Pool publishes a liquidity pool snapshot. Reserves are base units.
type Pool struct {
	Pair        string `toml:"Pair"`
	Token0      string `toml:"Token0"`
	Token1      string `toml:"Token1"`
	Reserve0    string `toml:"Reserve0"`
	Reserve1    string `toml:"Reserve1"`
	TotalSupply string `toml:"TotalSupply"`
}
