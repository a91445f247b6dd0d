package config

import (
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config bridge node configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	CORS     CORSConfig     `yaml:"cors"`
	Admin    AdminConfig    `yaml:"admin"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig audit database. An empty DSN disables the audit trail.
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig event publisher. An empty URL disables publishing.
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	Stream          string `yaml:"stream"`
	MaxAgeHours     int    `yaml:"max_age_hours"`
}

// StorageConfig state database locations, one per chain. An empty path keeps
// that chain in memory.
type StorageConfig struct {
	HomePath    string `yaml:"home_path"`
	ForeignPath string `yaml:"foreign_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig admin API access. Secrets are read from the environment only.
type AdminConfig struct {
	AllowedIPs    []string `yaml:"allowedIPs"`
	TokenTTLHours int      `yaml:"tokenTTLHours"`

	Username   string `yaml:"-"`
	Password   string `yaml:"-"`
	TOTPSecret string `yaml:"-"`
	JWTSecret  string `yaml:"-"`
}

func (a AdminConfig) TokenTTL() time.Duration {
	if a.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// BridgeConfig validator set and the two chains. The owner and validator set
// are installed on both chains at bootstrap.
type BridgeConfig struct {
	Owner              string      `yaml:"owner"`
	Validators         []string    `yaml:"validators"`
	RequiredSignatures uint64      `yaml:"requiredSignatures"`
	SignatureCacheSize int         `yaml:"signatureCacheSize"`
	Home               ChainConfig `yaml:"home"`
	Foreign            ChainConfig `yaml:"foreign"`
}

type ChainConfig struct {
	Name                       string         `yaml:"name"`
	ChainID                    uint64         `yaml:"chainId"`
	BridgeAddress              string         `yaml:"bridgeAddress"`
	ValidatorsAddress          string         `yaml:"validatorsAddress"`
	NativeDecimals             uint8          `yaml:"nativeDecimals"`
	RequiredBlockConfirmations uint64         `yaml:"requiredBlockConfirmations"`
	GasPrice                   string         `yaml:"gasPrice"`
	Limits                     LimitsConfig   `yaml:"limits"`
	Tokens                     []TokenConfig  `yaml:"tokens"`
	Assets                     []AssetConfig  `yaml:"assets"`
	Genesis                    []GenesisAlloc `yaml:"genesis"`
}

// LimitsConfig amounts in canonical (18 decimal) units, as decimal strings.
type LimitsConfig struct {
	DailyLimit string `yaml:"dailyLimit"`
	MaxPerTx   string `yaml:"maxPerTx"`
	MinPerTx   string `yaml:"minPerTx"`
}

// TokenConfig a token deployed at bootstrap. An empty owner makes the bridge
// ledger the owner, which home-side bridged tokens require.
type TokenConfig struct {
	Address  string         `yaml:"address"`
	Name     string         `yaml:"name"`
	Symbol   string         `yaml:"symbol"`
	Decimals uint8          `yaml:"decimals"`
	Owner    string         `yaml:"owner"`
	Mint     []GenesisAlloc `yaml:"mint"`
}

// AssetConfig a registration made at bootstrap. The zero address is the native coin.
type AssetConfig struct {
	Foreign string        `yaml:"foreign"`
	Home    string        `yaml:"home"`
	Limits  *LimitsConfig `yaml:"limits"`
}

type GenesisAlloc struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

var AppConfig *Config

// LoadConfig reads the yaml file at configPath, applies environment overrides
// and validates the result before publishing it as AppConfig.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	fmt.Printf("✅ [%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)

	overrideFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("📋 [Config] Home chain %q (id %d), foreign chain %q (id %d)\n",
		cfg.Bridge.Home.Name, cfg.Bridge.Home.ChainID, cfg.Bridge.Foreign.Name, cfg.Bridge.Foreign.ChainID)
	fmt.Printf("📋 [Config] Validators: %d, required signatures: %d\n", len(cfg.Bridge.Validators), cfg.Bridge.RequiredSignatures)
	if cfg.Database.DSN == "" {
		fmt.Printf("📋 [Config] Audit database: not configured\n")
	}
	if cfg.NATS.URL == "" {
		fmt.Printf("📋 [Config] NATS: not configured\n")
	}
	if len(cfg.Admin.AllowedIPs) > 0 {
		fmt.Printf("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured\n", len(cfg.Admin.AllowedIPs))
	} else {
		fmt.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)\n")
	}

	AppConfig = cfg
	return cfg, nil
}

// Parse decodes yaml and fills defaults. It does not read the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8545
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.CORS.MaxAge == 0 {
		c.CORS.MaxAge = 3600
	}
	if c.Bridge.SignatureCacheSize == 0 {
		c.Bridge.SignatureCacheSize = 4096
	}
	if c.Bridge.Home.Name == "" {
		c.Bridge.Home.Name = "home"
	}
	if c.Bridge.Foreign.Name == "" {
		c.Bridge.Foreign.Name = "foreign"
	}
	for _, ch := range []*ChainConfig{&c.Bridge.Home, &c.Bridge.Foreign} {
		if ch.NativeDecimals == 0 {
			ch.NativeDecimals = 18
		}
		if ch.RequiredBlockConfirmations == 0 {
			ch.RequiredBlockConfirmations = 8
		}
		if ch.GasPrice == "" {
			ch.GasPrice = "1000000000"
		}
	}
}

func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	if p := os.Getenv("HOME_DB_PATH"); p != "" {
		config.Storage.HomePath = p
	}
	if p := os.Getenv("FOREIGN_DB_PATH"); p != "" {
		config.Storage.ForeignPath = p
	}

	if owner := os.Getenv("BRIDGE_OWNER"); owner != "" {
		config.Bridge.Owner = owner
	}
	if validators := os.Getenv("BRIDGE_VALIDATORS"); validators != "" {
		config.Bridge.Validators = splitTrimmed(validators)
	}
	if required := os.Getenv("BRIDGE_REQUIRED_SIGNATURES"); required != "" {
		if n, err := strconv.ParseUint(required, 10, 64); err == nil {
			config.Bridge.RequiredSignatures = n
		}
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = splitTrimmed(origins)
	}

	config.Admin.Username = os.Getenv("ADMIN_USERNAME")
	if config.Admin.Username == "" {
		config.Admin.Username = "admin"
	}
	config.Admin.Password = os.Getenv("ADMIN_PASSWORD")
	config.Admin.TOTPSecret = os.Getenv("ADMIN_TOTP_SECRET")
	config.Admin.JWTSecret = os.Getenv("ADMIN_JWT_SECRET")
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration without touching any chain state.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	b := c.Bridge
	if _, err := ParseAddress(b.Owner, false); err != nil {
		errs = append(errs, fmt.Errorf("bridge.owner: %w", err))
	}
	if len(b.Validators) == 0 {
		errs = append(errs, errors.New("bridge.validators is empty"))
	}
	seen := make(map[common.Address]bool, len(b.Validators))
	for i, v := range b.Validators {
		addr, err := ParseAddress(v, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("bridge.validators[%d]: %w", i, err))
			continue
		}
		if seen[addr] {
			errs = append(errs, fmt.Errorf("bridge.validators[%d]: duplicate %s", i, addr.Hex()))
		}
		seen[addr] = true
	}
	if b.RequiredSignatures == 0 || b.RequiredSignatures > uint64(len(b.Validators)) {
		errs = append(errs, fmt.Errorf("bridge.requiredSignatures must be between 1 and %d", len(b.Validators)))
	}
	if b.SignatureCacheSize < 0 {
		errs = append(errs, errors.New("bridge.signatureCacheSize must not be negative"))
	}
	if strings.EqualFold(b.Home.Name, b.Foreign.Name) {
		errs = append(errs, fmt.Errorf("home and foreign chains share the name %q", b.Home.Name))
	}
	if b.Home.ChainID == b.Foreign.ChainID {
		errs = append(errs, fmt.Errorf("home and foreign chains share chain id %d", b.Home.ChainID))
	}
	errs = append(errs, b.Home.validate("bridge.home")...)
	errs = append(errs, b.Foreign.validate("bridge.foreign")...)
	return errors.Join(errs...)
}

func (ch ChainConfig) validate(path string) []error {
	var errs []error
	if _, err := ParseAddress(ch.BridgeAddress, false); err != nil {
		errs = append(errs, fmt.Errorf("%s.bridgeAddress: %w", path, err))
	}
	if ch.ValidatorsAddress != "" {
		if _, err := ParseAddress(ch.ValidatorsAddress, false); err != nil {
			errs = append(errs, fmt.Errorf("%s.validatorsAddress: %w", path, err))
		}
	}
	if ch.NativeDecimals > 18 {
		errs = append(errs, fmt.Errorf("%s.nativeDecimals %d exceeds 18", path, ch.NativeDecimals))
	}
	if _, err := ParseAmount(ch.GasPrice); err != nil {
		errs = append(errs, fmt.Errorf("%s.gasPrice: %w", path, err))
	}
	if err := ch.Limits.validate(); err != nil {
		errs = append(errs, fmt.Errorf("%s.limits: %w", path, err))
	}
	for i, t := range ch.Tokens {
		if _, err := ParseAddress(t.Address, false); err != nil {
			errs = append(errs, fmt.Errorf("%s.tokens[%d].address: %w", path, i, err))
		}
		if t.Owner != "" {
			if _, err := ParseAddress(t.Owner, false); err != nil {
				errs = append(errs, fmt.Errorf("%s.tokens[%d].owner: %w", path, i, err))
			}
		}
		if t.Decimals > 18 {
			errs = append(errs, fmt.Errorf("%s.tokens[%d].decimals %d exceeds 18", path, i, t.Decimals))
		}
		errs = append(errs, validateAllocs(fmt.Sprintf("%s.tokens[%d].mint", path, i), t.Mint)...)
	}
	for i, a := range ch.Assets {
		if _, err := ParseAddress(a.Foreign, true); err != nil {
			errs = append(errs, fmt.Errorf("%s.assets[%d].foreign: %w", path, i, err))
		}
		if _, err := ParseAddress(a.Home, true); err != nil {
			errs = append(errs, fmt.Errorf("%s.assets[%d].home: %w", path, i, err))
		}
		if a.Limits != nil {
			if err := a.Limits.validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s.assets[%d].limits: %w", path, i, err))
			}
		}
	}
	errs = append(errs, validateAllocs(path+".genesis", ch.Genesis)...)
	return errs
}

func validateAllocs(path string, allocs []GenesisAlloc) []error {
	var errs []error
	for i, a := range allocs {
		if _, err := ParseAddress(a.Address, false); err != nil {
			errs = append(errs, fmt.Errorf("%s[%d].address: %w", path, i, err))
		}
		if _, err := ParseAmount(a.Amount); err != nil {
			errs = append(errs, fmt.Errorf("%s[%d].amount: %w", path, i, err))
		}
	}
	return errs
}

// Values parses the three limits. Ordering is checked by the bridge.
func (l LimitsConfig) Values() (daily, maxPerTx, minPerTx *big.Int, err error) {
	if daily, err = ParseAmount(l.DailyLimit); err != nil {
		return nil, nil, nil, fmt.Errorf("dailyLimit: %w", err)
	}
	if maxPerTx, err = ParseAmount(l.MaxPerTx); err != nil {
		return nil, nil, nil, fmt.Errorf("maxPerTx: %w", err)
	}
	if minPerTx, err = ParseAmount(l.MinPerTx); err != nil {
		return nil, nil, nil, fmt.Errorf("minPerTx: %w", err)
	}
	return daily, maxPerTx, minPerTx, nil
}

func (l LimitsConfig) validate() error {
	daily, maxPerTx, minPerTx, err := l.Values()
	if err != nil {
		return err
	}
	if minPerTx.Cmp(maxPerTx) > 0 || maxPerTx.Cmp(daily) > 0 {
		return errors.New("must satisfy minPerTx <= maxPerTx <= dailyLimit")
	}
	return nil
}

// ParseAmount parses a non-negative base-10 integer. Empty means zero.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

// ParseAddress parses a 0x-prefixed hex address. The zero address is accepted
// only when allowZero is set.
func ParseAddress(s string, allowZero bool) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) && !allowZero {
		return common.Address{}, errors.New("zero address")
	}
	return addr, nil
}
