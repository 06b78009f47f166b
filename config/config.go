package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override, e.g. NFTLEND_CHAIN_RPCURL or
// NFTLEND_INDEXER_API_KEY.
const EnvPrefix = "NFTLEND"

const (
	defaultLendingContract  = "0xbcE690cb71b727ce476c73cAf6B734aff14b665f"
	defaultGiveawayContract = "0xa22311570fFD31938099174456823a60A42fbd6D"
	defaultIndexerBaseURL   = "https://deep-index.moralis.io/api/v2.2"
	defaultFixedAmount      = "0.001"
)

// Config is the full runtime configuration of the nftlend client.
type Config struct {
	Environment string    `toml:"Environment" yaml:"environment" split_words:"true"`
	Chain       Chain     `toml:"chain" yaml:"chain"`
	Contracts   Contracts `toml:"contracts" yaml:"contracts"`
	Wallet      Wallet    `toml:"wallet" yaml:"wallet"`
	Indexer     Indexer   `toml:"indexer" yaml:"indexer"`
	Policy      Policy    `toml:"policy" yaml:"policy"`
	Logging     Logging   `toml:"logging" yaml:"logging"`
	Telemetry   Telemetry `toml:"telemetry" yaml:"telemetry"`
	HTTP        HTTP      `toml:"http" yaml:"http"`
}

// Default returns the configuration of the reference deployment.
func Default() *Config {
	return &Config{
		Chain: Chain{
			RPCURL:       "http://127.0.0.1:8545",
			ChainID:      5,
			IndexerChain: "goerli",
		},
		Contracts: Contracts{
			Lending:  defaultLendingContract,
			Giveaway: defaultGiveawayContract,
		},
		Wallet: Wallet{
			SignerEndpoint:       "http://127.0.0.1:8550",
			ReconnectPollSeconds: 15,
		},
		Indexer: Indexer{
			BaseURL:           defaultIndexerBaseURL,
			RequestsPerSecond: 5,
			Burst:             5,
			TimeoutSeconds:    10,
			PageSize:          100,
		},
		Policy: Policy{
			LendAmount:     defaultFixedAmount,
			WithdrawAmount: defaultFixedAmount,
			BorrowAmount:   defaultFixedAmount,
		},
		Logging: Logging{Level: "info"},
		HTTP: HTTP{
			Listen:          "127.0.0.1:8089",
			RateLimitPerMin: 120,
		},
	}
}

// Load reads the configuration file at path (TOML or YAML by extension),
// applies NFTLEND_* environment overrides and validates the result. An empty
// path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
		return nil
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}
