package config

// Chain identifies the single network this deployment talks to.
type Chain struct {
	RPCURL string `toml:"RPCURL" yaml:"rpcURL" split_words:"true"`
	// ChainID is checked against the node at startup when non-zero.
	ChainID uint64 `toml:"ChainID" yaml:"chainID" split_words:"true"`
	// IndexerChain is the chain identifier understood by the NFT indexer, e.g. "goerli" or "0x5".
	IndexerChain string `toml:"IndexerChain" yaml:"indexerChain" split_words:"true"`
}

// Contracts holds the fixed addresses of the lending and giveaway contracts.
type Contracts struct {
	Lending  string `toml:"Lending" yaml:"lending" split_words:"true"`
	Giveaway string `toml:"Giveaway" yaml:"giveaway" split_words:"true"`
}

// Wallet points at the external signer that owns the account keys.
type Wallet struct {
	SignerEndpoint string `toml:"SignerEndpoint" yaml:"signerEndpoint" split_words:"true"`
	// Account selects one of the signer's accounts. Empty picks the first one.
	Account              string `toml:"Account" yaml:"account" split_words:"true"`
	ReconnectPollSeconds int    `toml:"ReconnectPollSeconds" yaml:"reconnectPollSeconds" split_words:"true"`
}

// Indexer configures the NFT indexing REST client.
type Indexer struct {
	BaseURL           string  `toml:"BaseURL" yaml:"baseURL" split_words:"true"`
	APIKey            string  `toml:"APIKey" yaml:"apiKey" split_words:"true"`
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requestsPerSecond" split_words:"true"`
	Burst             int     `toml:"Burst" yaml:"burst" split_words:"true"`
	TimeoutSeconds    int     `toml:"TimeoutSeconds" yaml:"timeoutSeconds" split_words:"true"`
	PageSize          int     `toml:"PageSize" yaml:"pageSize" split_words:"true"`
}

// Policy captures the per-deployment fixed amounts, expressed in native units
// (e.g. "0.001").
type Policy struct {
	LendAmount     string `toml:"LendAmount" yaml:"lendAmount" split_words:"true"`
	WithdrawAmount string `toml:"WithdrawAmount" yaml:"withdrawAmount" split_words:"true"`
	BorrowAmount   string `toml:"BorrowAmount" yaml:"borrowAmount" split_words:"true"`
}

// Logging configures observability/logging.Setup.
type Logging struct {
	Level string `toml:"Level" yaml:"level" split_words:"true"`
	File  string `toml:"File" yaml:"file" split_words:"true"`
}

// Telemetry configures the OTLP exporters. An empty endpoint disables them.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint" split_words:"true"`
	Insecure bool   `toml:"Insecure" yaml:"insecure" split_words:"true"`
	Headers  string `toml:"Headers" yaml:"headers" split_words:"true"`
}

// HTTP configures the status/actions surface started by `nftlend serve`.
type HTTP struct {
	Listen          string `toml:"Listen" yaml:"listen" split_words:"true"`
	RateLimitPerMin int    `toml:"RateLimitPerMin" yaml:"rateLimitPerMin" split_words:"true"`
	// AuthSecret enables bearer-token checks on the actions routes.
	AuthSecret   string `toml:"AuthSecret" yaml:"authSecret" split_words:"true"`
	AuthIssuer   string `toml:"AuthIssuer" yaml:"authIssuer" split_words:"true"`
	AuthAudience string `toml:"AuthAudience" yaml:"authAudience" split_words:"true"`
}
