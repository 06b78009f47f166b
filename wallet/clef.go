package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
)

// ClefConnector opens sessions against an external signer (clef). Keys never
// leave the signer; every transaction is approved inside it.
type ClefConnector struct {
	endpoint string
	account  common.Address

	mu     sync.Mutex
	signer *external.ExternalSigner
}

// NewClefConnector targets the signer at endpoint (IPC path or HTTP url).
// A zero account selects the signer's first account.
func NewClefConnector(endpoint string, account common.Address) *ClefConnector {
	return &ClefConnector{endpoint: strings.TrimSpace(endpoint), account: account}
}

// Connect dials the signer on first use and resolves the session account.
func (c *ClefConnector) Connect(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return Connection{}, err
	}
	if c.endpoint == "" {
		return Connection{}, fmt.Errorf("clef endpoint required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signer == nil {
		signer, err := external.NewExternalSigner(c.endpoint)
		if err != nil {
			return Connection{}, fmt.Errorf("dial external signer: %w", err)
		}
		c.signer = signer
	}
	account, err := c.pickAccount(c.signer.Accounts())
	if err != nil {
		// Drop the client so the next attempt redials a restarted signer.
		_ = c.signer.Close()
		c.signer = nil
		return Connection{}, err
	}
	return Connection{
		Account:    account.Address,
		Transactor: bind.NewClefTransactor(c.signer, account),
	}, nil
}

// Close releases the signer connection.
func (c *ClefConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signer == nil {
		return nil
	}
	err := c.signer.Close()
	c.signer = nil
	return err
}

func (c *ClefConnector) pickAccount(available []accounts.Account) (accounts.Account, error) {
	if len(available) == 0 {
		return accounts.Account{}, ErrNoAccounts
	}
	if c.account == (common.Address{}) {
		return available[0], nil
	}
	for _, candidate := range available {
		if candidate.Address == c.account {
			return candidate, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("account %s not managed by signer: %w", c.account.Hex(), ErrNoAccounts)
}
