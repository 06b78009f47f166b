package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"nftlend/wallet"
)

// LendingGateway is the typed surface of the lending contract for one
// signing account.
type LendingGateway interface {
	Address() common.Address
	Account() common.Address

	Lend(ctx context.Context, amount *big.Int) (Pending, error)
	Withdraw(ctx context.Context, amount *big.Int) (Pending, error)
	Borrow(ctx context.Context, amount *big.Int) (Pending, error)
	Repay(ctx context.Context, amount *big.Int) (Pending, error)
	DepositCollateral(ctx context.Context, nft common.Address, tokenID *big.Int) (Pending, error)
	WithdrawCollateral(ctx context.Context, nft common.Address, tokenID *big.Int) (Pending, error)

	IsCollateralized(ctx context.Context, nft common.Address, tokenID *big.Int) (bool, error)
	Balance(ctx context.Context) (*big.Int, error)
	Debt(ctx context.Context) (*big.Int, error)
	BorrowCapacity(ctx context.Context) (*big.Int, error)
}

type lendingContract struct {
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
	signer   *wallet.Signer
}

func newLendingContract(address common.Address, backend Backend, signer *wallet.Signer) *lendingContract {
	return &lendingContract{
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, lendingABI, backend, backend, backend),
		signer:   signer,
	}
}

func (l *lendingContract) Address() common.Address { return l.address }

func (l *lendingContract) Account() common.Address { return l.signer.Account() }

// Lend deposits amount of native currency as lender principal.
func (l *lendingContract) Lend(ctx context.Context, amount *big.Int) (Pending, error) {
	if err := requirePositive(amount); err != nil {
		return nil, fmt.Errorf("lend: %w", err)
	}
	return l.transact(ctx, amount, methodLend)
}

func (l *lendingContract) Withdraw(ctx context.Context, amount *big.Int) (Pending, error) {
	if err := requirePositive(amount); err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	return l.transact(ctx, nil, methodWithdraw, amount)
}

func (l *lendingContract) Borrow(ctx context.Context, amount *big.Int) (Pending, error) {
	if err := requirePositive(amount); err != nil {
		return nil, fmt.Errorf("borrow: %w", err)
	}
	return l.transact(ctx, nil, methodBorrow, amount)
}

// Repay pays back amount of native currency; the contract takes the attached
// value as the repayment.
func (l *lendingContract) Repay(ctx context.Context, amount *big.Int) (Pending, error) {
	if err := requirePositive(amount); err != nil {
		return nil, fmt.Errorf("repay: %w", err)
	}
	return l.transact(ctx, amount, methodRepay)
}

func (l *lendingContract) DepositCollateral(ctx context.Context, nft common.Address, tokenID *big.Int) (Pending, error) {
	if tokenID == nil {
		return nil, fmt.Errorf("deposit: token id required")
	}
	return l.transact(ctx, nil, methodDeposit, nft, tokenID)
}

func (l *lendingContract) WithdrawCollateral(ctx context.Context, nft common.Address, tokenID *big.Int) (Pending, error) {
	if tokenID == nil {
		return nil, fmt.Errorf("withdraw collateral: token id required")
	}
	return l.transact(ctx, nil, methodWithdrawCollateral, nft, tokenID)
}

func (l *lendingContract) IsCollateralized(ctx context.Context, nft common.Address, tokenID *big.Int) (bool, error) {
	if tokenID == nil {
		return false, fmt.Errorf("%s: token id required", methodIsCollateralized)
	}
	out, err := l.call(ctx, methodIsCollateralized, nft, tokenID)
	if err != nil {
		return false, err
	}
	value, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%s: %w: unexpected return type %T", methodIsCollateralized, ErrReadFailure, out[0])
	}
	return value, nil
}

func (l *lendingContract) Balance(ctx context.Context) (*big.Int, error) {
	return l.callUint(ctx, methodBalance)
}

func (l *lendingContract) Debt(ctx context.Context) (*big.Int, error) {
	return l.callUint(ctx, methodDebt)
}

func (l *lendingContract) BorrowCapacity(ctx context.Context) (*big.Int, error) {
	return l.callUint(ctx, methodBorrowCapacity)
}

func (l *lendingContract) callUint(ctx context.Context, method string) (*big.Int, error) {
	out, err := l.call(ctx, method)
	if err != nil {
		return nil, err
	}
	value, ok := out[0].(*big.Int)
	if !ok || value == nil {
		return nil, fmt.Errorf("%s: %w: unexpected return type %T", method, ErrReadFailure, out[0])
	}
	return value, nil
}

func (l *lendingContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	return callView(ctx, l.contract, l.signer, method, args...)
}

func (l *lendingContract) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (Pending, error) {
	return submit(ctx, l.contract, l.backend, l.signer, value, method, args...)
}

// callView runs a read-only call from the session account. The lending
// contract answers balance queries per caller, so From must be set.
func callView(ctx context.Context, contract *bind.BoundContract, signer *wallet.Signer, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := contract.Call(signer.CallOpts(ctx), &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", method, ErrReadFailure, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w: empty result", method, ErrReadFailure)
	}
	return out, nil
}

func submit(ctx context.Context, contract *bind.BoundContract, backend bind.DeployBackend, signer *wallet.Signer, value *big.Int, method string, args ...interface{}) (Pending, error) {
	tx, err := contract.Transact(signer.TransactOpts(ctx, value), method, args...)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", method, err)
	}
	return newPending(backend, tx, method), nil
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}
