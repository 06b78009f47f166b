package contractstest

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"nftlend/contracts"
)

var errRequire = errors.New("execution reverted")

type lendingGateway struct {
	l       *Ledger
	account common.Address
}

func (g *lendingGateway) Address() common.Address { return g.l.lending }

func (g *lendingGateway) Account() common.Address { return g.account }

func (g *lendingGateway) Lend(_ context.Context, amount *big.Int) (contracts.Pending, error) {
	l := g.l
	return l.submit(l.lending, "lend", amount, func() ([]*types.Log, error) {
		l.balance.Add(l.balance, amount)
		return nil, nil
	})
}

func (g *lendingGateway) Withdraw(_ context.Context, amount *big.Int) (contracts.Pending, error) {
	l := g.l
	return l.submit(l.lending, "wihtdraw", nil, func() ([]*types.Log, error) {
		if l.balance.Cmp(amount) < 0 {
			return nil, errRequire
		}
		l.balance.Sub(l.balance, amount)
		return nil, nil
	}, amount)
}

func (g *lendingGateway) Borrow(_ context.Context, amount *big.Int) (contracts.Pending, error) {
	l := g.l
	return l.submit(l.lending, "borrow", nil, func() ([]*types.Log, error) {
		next := new(big.Int).Add(l.debt, amount)
		if next.Cmp(l.capacity) > 0 {
			return nil, errRequire
		}
		l.debt = next
		return nil, nil
	}, amount)
}

func (g *lendingGateway) Repay(_ context.Context, amount *big.Int) (contracts.Pending, error) {
	l := g.l
	return l.submit(l.lending, "repay", amount, func() ([]*types.Log, error) {
		if amount.Cmp(l.debt) > 0 {
			return nil, errRequire
		}
		l.debt.Sub(l.debt, amount)
		return nil, nil
	})
}

func (g *lendingGateway) DepositCollateral(_ context.Context, nft common.Address, tokenID *big.Int) (contracts.Pending, error) {
	l := g.l
	return l.submit(l.lending, "deposit", nil, func() ([]*types.Log, error) {
		tok, ok := l.tokens[keyOf(nft, tokenID)]
		if !ok || tok.owner != l.account || tok.approved != l.lending {
			return nil, errRequire
		}
		tok.owner = l.lending
		tok.approved = common.Address{}
		l.collateral[keyOf(nft, tokenID)] = true
		l.capacity.Add(l.capacity, l.collateralValue)
		return nil, nil
	}, nft, tokenID)
}

func (g *lendingGateway) WithdrawCollateral(_ context.Context, nft common.Address, tokenID *big.Int) (contracts.Pending, error) {
	l := g.l
	return l.submit(l.lending, "withdrawCollateral", nil, func() ([]*types.Log, error) {
		key := keyOf(nft, tokenID)
		tok, ok := l.tokens[key]
		if !ok || !l.collateral[key] {
			return nil, errRequire
		}
		remaining := new(big.Int).Sub(l.capacity, l.collateralValue)
		if l.debt.Cmp(remaining) > 0 {
			return nil, errRequire
		}
		tok.owner = l.account
		delete(l.collateral, key)
		l.capacity = remaining
		return nil, nil
	}, nft, tokenID)
}

func (g *lendingGateway) IsCollateralized(_ context.Context, nft common.Address, tokenID *big.Int) (bool, error) {
	l := g.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.read("isCollateralized"); err != nil {
		return false, err
	}
	return l.collateral[keyOf(nft, tokenID)], nil
}

func (g *lendingGateway) Balance(context.Context) (*big.Int, error) {
	return g.l.readUint("myBalance", func(l *Ledger) *big.Int { return l.balance })
}

func (g *lendingGateway) Debt(context.Context) (*big.Int, error) {
	return g.l.readUint("myDebt", func(l *Ledger) *big.Int { return l.debt })
}

func (g *lendingGateway) BorrowCapacity(context.Context) (*big.Int, error) {
	return g.l.readUint("myBorrowCapacity", func(l *Ledger) *big.Int { return l.capacity })
}

func (l *Ledger) readUint(method string, field func(*Ledger) *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.read(method); err != nil {
		return nil, err
	}
	return new(big.Int).Set(field(l)), nil
}

type nftGateway struct {
	l       *Ledger
	address common.Address
}

func (g *nftGateway) Address() common.Address { return g.address }

func (g *nftGateway) Claim(context.Context) (contracts.Pending, error) {
	l := g.l
	return l.submit(g.address, "claimNFT", nil, func() ([]*types.Log, error) {
		l.nextMint++
		id := big.NewInt(l.nextMint)
		l.tokens[keyOf(g.address, id)] = &token{contract: g.address, id: id, name: "Giveaway", symbol: "FREE", owner: l.account}
		return []*types.Log{{
			Address: g.address,
			Topics: []common.Hash{
				transferTopic,
				{},
				common.BytesToHash(l.account.Bytes()),
				common.BigToHash(id),
			},
		}}, nil
	})
}

func (g *nftGateway) GetApproved(_ context.Context, tokenID *big.Int) (common.Address, error) {
	l := g.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.read("getApproved"); err != nil {
		return common.Address{}, err
	}
	tok, ok := l.tokens[keyOf(g.address, tokenID)]
	if !ok {
		return common.Address{}, errRequire
	}
	return tok.approved, nil
}

func (g *nftGateway) Approve(_ context.Context, spender common.Address, tokenID *big.Int) (contracts.Pending, error) {
	l := g.l
	return l.submit(g.address, "approve", nil, func() ([]*types.Log, error) {
		tok, ok := l.tokens[keyOf(g.address, tokenID)]
		if !ok || tok.owner != l.account {
			return nil, errRequire
		}
		tok.approved = spender
		return nil, nil
	}, spender, tokenID)
}
