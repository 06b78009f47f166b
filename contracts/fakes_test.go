package contracts

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"nftlend/wallet"
)

// fakeBackend answers view calls through callFn and records every sent
// transaction. Receipts default to successful.
type fakeBackend struct {
	mu       sync.Mutex
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt

	callFn      func(msg ethereum.CallMsg) ([]byte, error)
	sendErr     error
	receiptFn   func(hash common.Hash) (*types.Receipt, error)
	lastCallMsg ethereum.CallMsg
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{receipts: make(map[common.Hash]*types.Receipt)}
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.lastCallMsg = msg
	f.mu.Unlock()
	if f.callFn == nil {
		return nil, errors.New("no call handler")
	}
	return f.callFn(msg)
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions unsupported")
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.receiptFn != nil {
		return f.receiptFn(hash)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if receipt, ok := f.receipts[hash]; ok {
		return receipt, nil
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil
}

func (f *fakeBackend) transactions() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

func (f *fakeBackend) lastCall() ethereum.CallMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCallMsg
}

type staticSigners struct {
	signer *wallet.Signer
}

func (s staticSigners) Signer(context.Context) (*wallet.Signer, bool) {
	return s.signer, s.signer != nil
}

func testSigner(account common.Address) *wallet.Signer {
	return wallet.NewSigner(account, &bind.TransactOpts{
		From:     account,
		GasPrice: big.NewInt(1),
		GasLimit: 200_000,
		Signer: func(_ common.Address, tx *types.Transaction) (*types.Transaction, error) {
			return tx, nil
		},
	})
}

// respond packs the outputs of the method selected by msg.
func respond(contractABI abi.ABI, msg ethereum.CallMsg, values map[string][]interface{}) ([]byte, error) {
	method, err := contractABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	out, ok := values[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(out...)
}
