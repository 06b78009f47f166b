package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "goerli", cfg.Chain.IndexerChain)
	require.Equal(t, defaultLendingContract, cfg.Contracts.Lending)
	require.Equal(t, 100, cfg.Indexer.PageSize)
}

func TestLoadParsesTOML(t *testing.T) {
	path := writeFile(t, "nftlend.toml", `Environment = "staging"

[chain]
RPCURL = "https://rpc.example.org"
ChainID = 11155111
IndexerChain = "sepolia"

[contracts]
Lending = "0x00000000000000000000000000000000000000aa"
Giveaway = "0x00000000000000000000000000000000000000bb"

[policy]
LendAmount = "0.5"
WithdrawAmount = "0.25"
BorrowAmount = "1"

[indexer]
APIKey = "secret-key"
PageSize = 50
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, "https://rpc.example.org", cfg.Chain.RPCURL)
	require.Equal(t, uint64(11155111), cfg.Chain.ChainID)
	require.Equal(t, "sepolia", cfg.Chain.IndexerChain)
	require.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000aa"), cfg.LendingAddress())
	require.Equal(t, 50, cfg.Indexer.PageSize)
	// Untouched sections keep their defaults.
	require.Equal(t, defaultIndexerBaseURL, cfg.Indexer.BaseURL)

	amounts, err := cfg.Policy.Amounts()
	require.NoError(t, err)
	half, _ := new(big.Int).SetString("500000000000000000", 10)
	require.Zero(t, amounts.Lend.Cmp(half))
	one, _ := new(big.Int).SetString("1000000000000000000", 10)
	require.Zero(t, amounts.Borrow.Cmp(one))
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeFile(t, "nftlend.yaml", `chain:
  rpcURL: https://rpc.example.org
  indexerChain: "0x5"
wallet:
  signerEndpoint: /tmp/clef.ipc
  account: "0x00000000000000000000000000000000000000cc"
http:
  listen: 0.0.0.0:9000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0x5", cfg.Chain.IndexerChain)
	require.Equal(t, "/tmp/clef.ipc", cfg.Wallet.SignerEndpoint)
	require.Equal(t, "0.0.0.0:9000", cfg.HTTP.Listen)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "nftlend.toml", `[chain]
RPCURL = "https://rpc.example.org"
Bogus = true
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown key")
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "nftlend.json", `{}`)
	_, err := Load(path)
	require.ErrorContains(t, err, "unsupported config format")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "nftlend.toml", `[chain]
RPCURL = "https://file.example.org"
`)
	t.Setenv("NFTLEND_CHAIN_RPCURL", "https://env.example.org")
	t.Setenv("NFTLEND_INDEXER_API_KEY", "from-env")
	t.Setenv("NFTLEND_POLICY_LEND_AMOUNT", "0.002")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://env.example.org", cfg.Chain.RPCURL)
	require.Equal(t, "from-env", cfg.Indexer.APIKey)
	require.Equal(t, "0.002", cfg.Policy.LendAmount)
}

func TestValidateRejectsBadContracts(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Contracts.Lending = "not-an-address"
	require.ErrorContains(t, cfg.Validate(), "contracts.Lending")

	cfg = Default()
	cfg.Contracts.Giveaway = "0x0000000000000000000000000000000000000000"
	require.ErrorContains(t, cfg.Validate(), "zero address")
}

func TestValidateRejectsShortAuthSecret(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.HTTP.AuthSecret = "short"
	require.ErrorContains(t, cfg.Validate(), "http.AuthSecret")

	cfg.HTTP.AuthSecret = strings.Repeat("k", 32)
	require.NoError(t, cfg.Validate())
}

func TestParseNativeAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr string
	}{
		{name: "policy default", value: "0.001", want: "1000000000000000"},
		{name: "whole units", value: "3", want: "3000000000000000000"},
		{name: "smallest unit", value: "0.000000000000000001", want: "1"},
		{name: "empty", value: "  ", wantErr: "required"},
		{name: "not a number", value: "abc", wantErr: "not a decimal"},
		{name: "zero", value: "0", wantErr: "positive"},
		{name: "negative", value: "-1", wantErr: "positive"},
		{name: "too precise", value: "0.0000000000000000001", wantErr: "decimals"},
		{name: "overflow", value: "1" + strings.Repeat("0", 60), wantErr: "overflows"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseNativeAmount("test", tc.value)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got.String())
		})
	}
}

func TestSanitizedMasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Indexer.APIKey = "super-secret"
	cfg.Telemetry.Headers = "authorization=Bearer abc"
	cfg.HTTP.AuthSecret = "0123456789abcdef0123456789abcdef"

	clean := cfg.Sanitized()
	require.Equal(t, "***", clean.HTTP.AuthSecret)
	require.Equal(t, "***", clean.Indexer.APIKey)
	require.Equal(t, "***", clean.Telemetry.Headers)
	require.Equal(t, "super-secret", cfg.Indexer.APIKey)
}
