package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotConnected is reported when no wallet session could be established.
	ErrNotConnected = errors.New("wallet: not connected")
	// ErrNoAccounts is returned by connectors whose wallet exposes no account.
	ErrNoAccounts = errors.New("wallet: no accounts available")
)

// Connection is what a wallet hands back once the holder approves a session.
type Connection struct {
	Account    common.Address
	Transactor *bind.TransactOpts
}

// Connector establishes wallet sessions. Implementations may block on a user
// prompt inside the wallet.
type Connector interface {
	Connect(ctx context.Context) (Connection, error)
}

// Signer is a signing handle bound to one account of the current session.
type Signer struct {
	account common.Address
	opts    *bind.TransactOpts
}

// NewSigner wraps a transactor for account.
func NewSigner(account common.Address, opts *bind.TransactOpts) *Signer {
	return &Signer{account: account, opts: opts}
}

// Account returns the address transactions are signed for.
func (s *Signer) Account() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.account
}

// TransactOpts returns a per-call copy of the transactor carrying ctx and the
// value to attach. A nil value sends no native currency.
func (s *Signer) TransactOpts(ctx context.Context, value *big.Int) *bind.TransactOpts {
	opts := bind.TransactOpts{From: s.account}
	if s.opts != nil {
		opts = *s.opts
	}
	opts.Context = ctx
	if value != nil {
		opts.Value = new(big.Int).Set(value)
	} else {
		opts.Value = nil
	}
	return &opts
}

// CallOpts returns view-call options sent from the session account; the
// lending contract answers balance and debt queries per caller.
func (s *Signer) CallOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{From: s.Account(), Context: ctx}
}

// EventKind classifies session transitions.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventAccountChanged
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventAccountChanged:
		return "account_changed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SessionEvent is published whenever the session's account or connectivity
// changes. Previous is the zero address for a first connection.
type SessionEvent struct {
	Kind     EventKind
	Account  common.Address
	Previous common.Address
}
