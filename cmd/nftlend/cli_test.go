package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nftlend/orchestrator"
	"nftlend/portfolio"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000a1")

type fakeView struct{ snap portfolio.Snapshot }

func (f *fakeView) Snapshot() portfolio.Snapshot { return f.snap }

type fakeRefresher struct {
	err   error
	calls int
}

func (f *fakeRefresher) RefreshPosition(context.Context) error {
	f.calls++
	return f.err
}

func (f *fakeRefresher) RefreshInventory(context.Context) error {
	f.calls++
	return f.err
}

type fakeActions struct {
	outcome orchestrator.Outcome
	calls   []string
}

func (f *fakeActions) record(name string, action orchestrator.Action) orchestrator.Outcome {
	f.calls = append(f.calls, name)
	out := f.outcome
	out.Action = action
	return out
}

func (f *fakeActions) Lend(context.Context) orchestrator.Outcome {
	return f.record("lend", orchestrator.ActionLend)
}

func (f *fakeActions) Withdraw(context.Context) orchestrator.Outcome {
	return f.record("withdraw", orchestrator.ActionWithdraw)
}

func (f *fakeActions) Borrow(context.Context) orchestrator.Outcome {
	return f.record("borrow", orchestrator.ActionBorrow)
}

func (f *fakeActions) Repay(context.Context) orchestrator.Outcome {
	return f.record("repay", orchestrator.ActionRepay)
}

func (f *fakeActions) ClaimNFT(context.Context) orchestrator.Outcome {
	return f.record("claim", orchestrator.ActionClaim)
}

func (f *fakeActions) PostCollateral(_ context.Context, nft common.Address, tokenID *big.Int) orchestrator.Outcome {
	return f.record(fmt.Sprintf("post %s %s", nft.Hex(), tokenID), orchestrator.ActionPostCollateral)
}

func (f *fakeActions) WithdrawCollateral(_ context.Context, nft common.Address, tokenID *big.Int) orchestrator.Outcome {
	return f.record(fmt.Sprintf("withdraw %s %s", nft.Hex(), tokenID), orchestrator.ActionWithdrawCollateral)
}

type fixture struct {
	view      *fakeView
	refresher *fakeRefresher
	actions   *fakeActions
	wired     int
	closed    int
	wireErr   error
}

func newFixture() *fixture {
	return &fixture{
		view: &fakeView{snap: portfolio.Snapshot{
			Account:   testAccount,
			Connected: true,
			Position: &portfolio.Position{
				Balance:        decimal.RequireFromString("0.002"),
				Debt:           decimal.RequireFromString("0.001"),
				BorrowCapacity: decimal.RequireFromString("0.01"),
			},
			Inventory: []portfolio.CollateralAsset{
				{Contract: common.HexToAddress("0xb2"), TokenID: big.NewInt(1001), Name: "Giveaway", HeldAsCollateral: true},
			},
		}},
		refresher: &fakeRefresher{},
		actions:   &fakeActions{},
	}
}

func (f *fixture) wire(context.Context, globalOptions) (*app, error) {
	f.wired++
	if f.wireErr != nil {
		return nil, f.wireErr
	}
	return &app{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		view:      f.view,
		refresher: f.refresher,
		actions:   f.actions,
		close: func(context.Context) error {
			f.closed++
			return nil
		},
	}, nil
}

func executeCLI(t *testing.T, f *fixture, args ...string) (string, string, error) {
	t.Helper()
	c := &cli{wire: f.wire}
	root := c.rootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	require.NoError(t, c.shutdown())
	return stdout.String(), stderr.String(), err
}

func TestVersionDoesNotWire(t *testing.T) {
	f := newFixture()
	stdout, _, err := executeCLI(t, f, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", stdout)
	assert.Zero(t, f.wired)
}

func TestPositionText(t *testing.T) {
	f := newFixture()
	stdout, _, err := executeCLI(t, f, "position")
	require.NoError(t, err)
	assert.Contains(t, stdout, testAccount.Hex())
	assert.Contains(t, stdout, "available to borrow  0.009")
	assert.Equal(t, 1, f.refresher.calls)
	assert.Equal(t, 1, f.closed)
}

func TestPositionJSON(t *testing.T) {
	f := newFixture()
	stdout, _, err := executeCLI(t, f, "position", "--json")
	require.NoError(t, err)

	var out positionOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.True(t, out.Connected)
	require.NotNil(t, out.AvailableToBorrow)
	assert.True(t, out.AvailableToBorrow.Equal(decimal.RequireFromString("0.009")))
}

func TestPositionDisconnected(t *testing.T) {
	f := newFixture()
	f.view.snap = portfolio.Snapshot{}
	f.refresher.err = portfolio.ErrDisconnected
	stdout, _, err := executeCLI(t, f, "position")
	require.NoError(t, err)
	assert.Contains(t, stdout, "wallet not connected")
}

func TestInventoryReadFailure(t *testing.T) {
	f := newFixture()
	f.refresher.err = errors.New("indexer: request failed")
	_, _, err := executeCLI(t, f, "inventory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load inventory")
}

func TestInventoryText(t *testing.T) {
	f := newFixture()
	stdout, _, err := executeCLI(t, f, "inventory")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1001")
	assert.Contains(t, stdout, "yes")
}

func TestActionCommands(t *testing.T) {
	for _, name := range []string{"lend", "withdraw", "borrow", "repay", "claim"} {
		f := newFixture()
		stdout, _, err := executeCLI(t, f, name)
		require.NoError(t, err, name)
		assert.Equal(t, []string{name}, f.actions.calls)
		assert.Contains(t, stdout, "result  ok")
	}
}

func TestFailedActionReturnsError(t *testing.T) {
	f := newFixture()
	f.actions.outcome = orchestrator.Outcome{
		Phase:    orchestrator.PhaseFailed,
		FailedIn: orchestrator.PhaseSubmitting,
		Kind:     orchestrator.KindPrecondition,
		Message:  "orchestrator: no outstanding debt",
		Err:      orchestrator.ErrNothingToRepay,
	}
	stdout, _, err := executeCLI(t, f, "repay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repay failed (precondition)")
	assert.Contains(t, stdout, "result  failed")
}

func TestCollateralCommands(t *testing.T) {
	f := newFixture()
	_, _, err := executeCLI(t, f, "collateral", "post", "0x00000000000000000000000000000000000000b2", "1001")
	require.NoError(t, err)
	_, _, err = executeCLI(t, f, "collateral", "withdraw", "0x00000000000000000000000000000000000000b2", "1001")
	require.NoError(t, err)

	nft := common.HexToAddress("0xb2").Hex()
	assert.Equal(t, []string{"post " + nft + " 1001", "withdraw " + nft + " 1001"}, f.actions.calls)
}

func TestCollateralRejectsBadArgumentsBeforeWiring(t *testing.T) {
	f := newFixture()
	_, _, err := executeCLI(t, f, "collateral", "post", "not-an-address", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a hex address")

	_, _, err = executeCLI(t, f, "collateral", "post", "0x00000000000000000000000000000000000000b2", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a non-negative integer")
	assert.Zero(t, f.wired)
}

func TestWireErrorSurfaces(t *testing.T) {
	f := newFixture()
	f.wireErr = errors.New("load config: chain.RPCURL is required")
	_, _, err := executeCLI(t, f, "position")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain.RPCURL")
}

func TestRateLimits(t *testing.T) {
	assert.Nil(t, rateLimits(0))
	limits := rateLimits(30)
	assert.Equal(t, float64(30), limits["actions"].RequestsPerMinute)
	assert.Equal(t, 3, limits["actions"].Burst)
	assert.Equal(t, float64(120), limits["reads"].RequestsPerMinute)
	assert.Equal(t, 12, limits["reads"].Burst)
}

func TestServeRunsUntilCancelled(t *testing.T) {
	f := newFixture()
	a, err := f.wire(context.Background(), globalOptions{})
	require.NoError(t, err)
	a.health = func(context.Context) error { return nil }
	started := make(chan struct{})
	a.background = []func(context.Context) error{
		func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, listener) }()

	<-started
	resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
