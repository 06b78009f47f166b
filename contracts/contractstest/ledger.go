// Package contractstest provides an in-memory lending ledger that implements
// the contract gateways and the NFT listing used by the client. Effects of a
// transaction are applied when its Pending handle is waited on, the way a
// block would include it.
package contractstest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"nftlend/contracts"
	"nftlend/indexer"
)

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// DefaultCollateralValue is the borrow capacity one posted NFT adds.
var DefaultCollateralValue = big.NewInt(10_000_000_000_000_000)

// Submission records a transaction handed to the ledger.
type Submission struct {
	Contract common.Address
	Method   string
	Value    *big.Int
	Args     []interface{}
}

type tokenKey struct {
	contract common.Address
	id       string
}

type token struct {
	contract common.Address
	id       *big.Int
	name     string
	symbol   string
	owner    common.Address
	approved common.Address
}

// Ledger is a single-account lending market with ERC-721 collateral.
type Ledger struct {
	mu sync.Mutex

	lending   common.Address
	account   common.Address
	connected bool

	balance         *big.Int
	debt            *big.Int
	capacity        *big.Int
	collateralValue *big.Int

	tokens     map[tokenKey]*token
	collateral map[tokenKey]bool
	nextMint   int64
	nonce      uint64
	pageSize   int

	submissions []Submission
	listCalls   int
	readCalls   map[string]int

	// SubmitErr, when set, can reject a submission before it is sent.
	SubmitErr func(method string) error
	// Reverts, when set, marks a method's receipts as failed.
	Reverts func(method string) bool
	// ReadErr, when set, can fail a view call.
	ReadErr func(method string) error
	// ListErr, when set, can fail the listing page fetch for owner.
	ListErr func(owner common.Address, page int) error
}

// NewLedger returns a connected ledger for account.
func NewLedger(lending, account common.Address) *Ledger {
	return &Ledger{
		lending:         lending,
		account:         account,
		connected:       true,
		balance:         new(big.Int),
		debt:            new(big.Int),
		capacity:        new(big.Int),
		collateralValue: new(big.Int).Set(DefaultCollateralValue),
		tokens:          make(map[tokenKey]*token),
		collateral:      make(map[tokenKey]bool),
		nextMint:        1000,
		pageSize:        2,
		readCalls:       make(map[string]int),
	}
}

func keyOf(contract common.Address, id *big.Int) tokenKey {
	return tokenKey{contract: contract, id: id.String()}
}

// Mint places a token with owner.
func (l *Ledger) Mint(contract common.Address, id int64, name, symbol string, owner common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tokenID := big.NewInt(id)
	l.tokens[keyOf(contract, tokenID)] = &token{contract: contract, id: tokenID, name: name, symbol: symbol, owner: owner}
}

// Approve sets the approved spender of a token directly.
func (l *Ledger) Approve(contract common.Address, id int64, spender common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tok, ok := l.tokens[keyOf(contract, big.NewInt(id))]; ok {
		tok.approved = spender
	}
}

// SetCollateral marks a token held by the lending contract as registered (or
// not) collateral of the account.
func (l *Ledger) SetCollateral(contract common.Address, id int64, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.collateral[keyOf(contract, big.NewInt(id))] = held
}

// SetPosition overwrites the account position in base units.
func (l *Ledger) SetPosition(balance, debt, capacity *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = new(big.Int).Set(balance)
	l.debt = new(big.Int).Set(debt)
	l.capacity = new(big.Int).Set(capacity)
}

// Position returns balance, debt and borrow capacity in base units.
func (l *Ledger) Position() (balance, debt, capacity *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance), new(big.Int).Set(l.debt), new(big.Int).Set(l.capacity)
}

// SetPageSize controls listing pagination.
func (l *Ledger) SetPageSize(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pageSize = n
}

// SetConnected toggles whether gateways can be bound.
func (l *Ledger) SetConnected(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = connected
}

// SwitchAccount moves the session to account. Gateways bound earlier keep
// the account they were bound to.
func (l *Ledger) SwitchAccount(account common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account = account
}

// Submissions returns every transaction sent so far.
func (l *Ledger) Submissions() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Submission(nil), l.submissions...)
}

// ListCalls counts page fetches served.
func (l *Ledger) ListCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listCalls
}

// ReadCalls counts view calls of method.
func (l *Ledger) ReadCalls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readCalls[method]
}

// Owner reports the current owner of a token.
func (l *Ledger) Owner(contract common.Address, id int64) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tok, ok := l.tokens[keyOf(contract, big.NewInt(id))]; ok {
		return tok.owner
	}
	return common.Address{}
}

// LendingAddress is the lending contract (and collateral custodian).
func (l *Ledger) LendingAddress() common.Address { return l.lending }

// Lending binds the lending gateway, failing with ErrNoSigner when
// disconnected.
func (l *Ledger) Lending(context.Context) (contracts.LendingGateway, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil, contracts.ErrNoSigner
	}
	return &lendingGateway{l: l, account: l.account}, nil
}

// NFT binds the gateway of the ERC-721 contract at address.
func (l *Ledger) NFT(_ context.Context, address common.Address) (contracts.NFTGateway, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil, contracts.ErrNoSigner
	}
	return &nftGateway{l: l, address: address}, nil
}

// WalletNFTs serves owner's tokens ordered by contract and id, in pages.
func (l *Ledger) WalletNFTs(ctx context.Context, owner common.Address) (*indexer.Page, error) {
	l.mu.Lock()
	var owned []indexer.NFT
	for _, tok := range l.tokens {
		if tok.owner != owner {
			continue
		}
		owned = append(owned, indexer.NFT{
			TokenAddress: tok.contract,
			TokenID:      new(big.Int).Set(tok.id),
			Name:         tok.name,
			Symbol:       tok.symbol,
			Owner:        tok.owner,
		})
	}
	size := l.pageSize
	l.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].TokenAddress != owned[j].TokenAddress {
			return owned[i].TokenAddress.Hex() < owned[j].TokenAddress.Hex()
		}
		return owned[i].TokenID.Cmp(owned[j].TokenID) < 0
	})
	if size <= 0 {
		size = len(owned) + 1
	}
	return l.page(ctx, owner, owned, size, 0)
}

func (l *Ledger) page(ctx context.Context, owner common.Address, all []indexer.NFT, size, n int) (*indexer.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.listCalls++
	hook := l.ListErr
	l.mu.Unlock()
	if hook != nil {
		if err := hook(owner, n); err != nil {
			return nil, err
		}
	}
	start := n * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	var next func(context.Context) (*indexer.Page, error)
	if end < len(all) {
		next = func(ctx context.Context) (*indexer.Page, error) {
			return l.page(ctx, owner, all, size, n+1)
		}
	}
	return indexer.NewPage(all[start:end], next), nil
}

func (l *Ledger) read(method string) error {
	l.readCalls[method]++
	if l.ReadErr != nil {
		if err := l.ReadErr(method); err != nil {
			return fmt.Errorf("%s: %w: %w", method, contracts.ErrReadFailure, err)
		}
	}
	return nil
}

// submit records a transaction whose effect runs when it is mined.
func (l *Ledger) submit(contract common.Address, method string, value *big.Int, effect func() ([]*types.Log, error), args ...interface{}) (contracts.Pending, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SubmitErr != nil {
		if err := l.SubmitErr(method); err != nil {
			return nil, fmt.Errorf("submit %s: %w", method, err)
		}
	}
	var copied *big.Int
	if value != nil {
		copied = new(big.Int).Set(value)
	}
	l.submissions = append(l.submissions, Submission{Contract: contract, Method: method, Value: copied, Args: args})
	l.nonce++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], l.nonce)
	return &pending{l: l, hash: crypto.Keccak256Hash(seed[:]), method: method, effect: effect}, nil
}

type pending struct {
	l      *Ledger
	hash   common.Hash
	method string
	effect func() ([]*types.Log, error)

	once    sync.Once
	receipt *types.Receipt
	err     error
}

func (p *pending) Hash() common.Hash { return p.hash }

func (p *pending) Method() string { return p.method }

func (p *pending) Wait(ctx context.Context) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.once.Do(func() {
		p.l.mu.Lock()
		defer p.l.mu.Unlock()
		receipt := &types.Receipt{TxHash: p.hash, Status: types.ReceiptStatusSuccessful}
		reverted := p.l.Reverts != nil && p.l.Reverts(p.method)
		if !reverted {
			logs, err := p.effect()
			if err != nil {
				reverted = true
			} else {
				receipt.Logs = logs
			}
		}
		if reverted {
			receipt.Status = types.ReceiptStatusFailed
			p.err = fmt.Errorf("%s %s: %w", p.method, p.hash.Hex(), contracts.ErrReverted)
		}
		p.receipt = receipt
	})
	return p.receipt, p.err
}
