package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const minAuthSecretLen = 32

// Validate ensures the configuration is internally consistent.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.RPCURL is required")
	}
	if strings.TrimSpace(cfg.Chain.IndexerChain) == "" {
		return fmt.Errorf("chain.IndexerChain is required")
	}
	if _, err := parseContract("contracts.Lending", cfg.Contracts.Lending); err != nil {
		return err
	}
	if _, err := parseContract("contracts.Giveaway", cfg.Contracts.Giveaway); err != nil {
		return err
	}
	if account := strings.TrimSpace(cfg.Wallet.Account); account != "" && !common.IsHexAddress(account) {
		return fmt.Errorf("wallet.Account %q is not a hex address", account)
	}
	if strings.TrimSpace(cfg.Wallet.SignerEndpoint) == "" {
		return fmt.Errorf("wallet.SignerEndpoint is required")
	}
	if cfg.Wallet.ReconnectPollSeconds < 0 {
		return fmt.Errorf("wallet.ReconnectPollSeconds must be non-negative")
	}
	parsed, err := url.Parse(strings.TrimSpace(cfg.Indexer.BaseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("indexer.BaseURL %q is not an absolute url", cfg.Indexer.BaseURL)
	}
	if cfg.Indexer.RequestsPerSecond < 0 {
		return fmt.Errorf("indexer.RequestsPerSecond must be non-negative")
	}
	if cfg.Indexer.PageSize < 0 || cfg.Indexer.PageSize > 100 {
		return fmt.Errorf("indexer.PageSize must be between 0 and 100")
	}
	if _, err := cfg.Policy.Amounts(); err != nil {
		return err
	}
	if cfg.HTTP.RateLimitPerMin < 0 {
		return fmt.Errorf("http.RateLimitPerMin must be non-negative")
	}
	if secret := strings.TrimSpace(cfg.HTTP.AuthSecret); secret != "" && len(secret) < minAuthSecretLen {
		return fmt.Errorf("http.AuthSecret must be at least %d bytes", minAuthSecretLen)
	}
	return nil
}

// Sanitized returns a copy of the Config with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	if clone.Indexer.APIKey != "" {
		clone.Indexer.APIKey = "***"
	}
	if clone.Telemetry.Headers != "" {
		clone.Telemetry.Headers = "***"
	}
	if clone.HTTP.AuthSecret != "" {
		clone.HTTP.AuthSecret = "***"
	}
	return clone
}

// LendingAddress returns the parsed lending contract address. Callers must
// have validated the config first.
func (cfg *Config) LendingAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(cfg.Contracts.Lending))
}

// GiveawayAddress returns the parsed giveaway NFT contract address.
func (cfg *Config) GiveawayAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(cfg.Contracts.Giveaway))
}

func parseContract(label, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s %q is not a hex address", label, value)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s must not be the zero address", label)
	}
	return addr, nil
}
