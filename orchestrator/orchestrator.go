package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"nftlend/config"
	"nftlend/contracts"
	"nftlend/observability"
	"nftlend/observability/logging"
	"nftlend/observability/otel"
	"nftlend/portfolio"
)

// Gateways binds contract gateways to the current session.
type Gateways interface {
	Lending(ctx context.Context) (contracts.LendingGateway, error)
	NFT(ctx context.Context, address common.Address) (contracts.NFTGateway, error)
}

// Refresher reloads parts of the local view after a confirmed action.
type Refresher interface {
	RefreshPosition(ctx context.Context) error
	RefreshInventory(ctx context.Context) error
}

// PhaseFunc observes phase transitions of running actions.
type PhaseFunc func(id uuid.UUID, action Action, phase Phase)

// Orchestrator sequences the transactions behind each user action, confirms
// every step before the next dependent one, and refreshes the affected view.
type Orchestrator struct {
	gateways  Gateways
	refresher Refresher
	amounts   config.Amounts
	giveaway  common.Address
	logger    *slog.Logger
	onPhase   PhaseFunc
	newID     func() uuid.UUID
	now       func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithPhaseListener reports every phase transition to fn.
func WithPhaseListener(fn PhaseFunc) Option {
	return func(o *Orchestrator) { o.onPhase = fn }
}

// New wires an orchestrator. amounts are the fixed policy amounts in base
// units and giveaway is the free-mint NFT contract.
func New(gateways Gateways, refresher Refresher, amounts config.Amounts, giveaway common.Address, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateways:  gateways,
		refresher: refresher,
		amounts:   amounts,
		giveaway:  giveaway,
		logger:    logging.Component(logger, "orchestrator"),
		newID:     uuid.New,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Lend deposits the policy lend amount as principal.
func (o *Orchestrator) Lend(ctx context.Context) Outcome {
	return o.run(ctx, ActionLend, nil, func(ctx context.Context, x *execution) error {
		lending, err := o.gateways.Lending(ctx)
		if err != nil {
			return err
		}
		_, err = x.step(ctx, "lend", func() (contracts.Pending, error) {
			return lending.Lend(ctx, o.amounts.Lend)
		})
		return err
	}, portfolio.ResourcePosition)
}

// Withdraw takes the policy withdraw amount out of the lent principal.
func (o *Orchestrator) Withdraw(ctx context.Context) Outcome {
	return o.run(ctx, ActionWithdraw, nil, func(ctx context.Context, x *execution) error {
		lending, err := o.gateways.Lending(ctx)
		if err != nil {
			return err
		}
		_, err = x.step(ctx, "withdraw", func() (contracts.Pending, error) {
			return lending.Withdraw(ctx, o.amounts.Withdraw)
		})
		return err
	}, portfolio.ResourcePosition)
}

// Borrow draws the policy borrow amount against posted collateral.
func (o *Orchestrator) Borrow(ctx context.Context) Outcome {
	return o.run(ctx, ActionBorrow, nil, func(ctx context.Context, x *execution) error {
		lending, err := o.gateways.Lending(ctx)
		if err != nil {
			return err
		}
		_, err = x.step(ctx, "borrow", func() (contracts.Pending, error) {
			return lending.Borrow(ctx, o.amounts.Borrow)
		})
		return err
	}, portfolio.ResourcePosition)
}

// Repay pays back the whole debt. The debt is read from the chain right
// before submission; a zero debt fails without submitting anything.
func (o *Orchestrator) Repay(ctx context.Context) Outcome {
	return o.run(ctx, ActionRepay, nil, func(ctx context.Context, x *execution) error {
		lending, err := o.gateways.Lending(ctx)
		if err != nil {
			return err
		}
		debt, err := lending.Debt(ctx)
		if err != nil {
			return err
		}
		if debt.Sign() <= 0 {
			return fmt.Errorf("%w: %w", ErrPrecondition, ErrNothingToRepay)
		}
		_, err = x.step(ctx, "repay", func() (contracts.Pending, error) {
			return lending.Repay(ctx, debt)
		})
		return err
	}, portfolio.ResourcePosition)
}

// PostCollateral approves the lending contract for the token when it is not
// already approved, waits for that approval, then deposits the token.
func (o *Orchestrator) PostCollateral(ctx context.Context, nftAddress common.Address, tokenID *big.Int) Outcome {
	attrs := tokenAttrs(nftAddress, tokenID)
	return o.run(ctx, ActionPostCollateral, attrs, func(ctx context.Context, x *execution) error {
		if err := validToken(nftAddress, tokenID); err != nil {
			return err
		}
		lending, err := o.gateways.Lending(ctx)
		if err != nil {
			return err
		}
		nft, err := o.gateways.NFT(ctx, nftAddress)
		if err != nil {
			return err
		}
		approved, err := nft.GetApproved(ctx, tokenID)
		if err != nil {
			return err
		}
		if approved != lending.Address() {
			if _, err := x.step(ctx, "approve", func() (contracts.Pending, error) {
				return nft.Approve(ctx, lending.Address(), tokenID)
			}); err != nil {
				return err
			}
		} else {
			o.logger.Debug("collateral already approved",
				"action_id", x.outcome.ActionID.String(),
				"contract", nftAddress.Hex(),
				"token_id", tokenID.String(),
			)
		}
		_, err = x.step(ctx, "deposit", func() (contracts.Pending, error) {
			return lending.DepositCollateral(ctx, nftAddress, tokenID)
		})
		return err
	}, portfolio.ResourceInventory, portfolio.ResourcePosition)
}

// WithdrawCollateral returns a posted token to the account.
func (o *Orchestrator) WithdrawCollateral(ctx context.Context, nftAddress common.Address, tokenID *big.Int) Outcome {
	attrs := tokenAttrs(nftAddress, tokenID)
	return o.run(ctx, ActionWithdrawCollateral, attrs, func(ctx context.Context, x *execution) error {
		if err := validToken(nftAddress, tokenID); err != nil {
			return err
		}
		lending, err := o.gateways.Lending(ctx)
		if err != nil {
			return err
		}
		_, err = x.step(ctx, "withdraw_collateral", func() (contracts.Pending, error) {
			return lending.WithdrawCollateral(ctx, nftAddress, tokenID)
		})
		return err
	}, portfolio.ResourceInventory, portfolio.ResourcePosition)
}

// ClaimNFT mints a free token from the giveaway contract. The minted id is
// reported in the outcome when the receipt carries it.
func (o *Orchestrator) ClaimNFT(ctx context.Context) Outcome {
	return o.run(ctx, ActionClaim, nil, func(ctx context.Context, x *execution) error {
		lending, err := o.gateways.Lending(ctx)
		if err != nil {
			return err
		}
		nft, err := o.gateways.NFT(ctx, o.giveaway)
		if err != nil {
			return err
		}
		receipt, err := x.step(ctx, "claim", func() (contracts.Pending, error) {
			return nft.Claim(ctx)
		})
		if err != nil {
			return err
		}
		tokenID, err := contracts.MintedTokenID(receipt, o.giveaway, lending.Account())
		if err != nil {
			o.logger.Warn("claimed token id not found in receipt",
				"action_id", x.outcome.ActionID.String(),
				"tx", receipt.TxHash.Hex(),
			)
			return nil
		}
		x.outcome.TokenID = tokenID
		return nil
	}, portfolio.ResourceInventory)
}

type execution struct {
	o       *Orchestrator
	outcome *Outcome
	span    trace.Span
}

func (x *execution) enter(phase Phase) {
	x.outcome.Phase = phase
	x.span.AddEvent(string(phase))
	if x.o.onPhase != nil {
		x.o.onPhase(x.outcome.ActionID, x.outcome.Action, phase)
	}
}

// step submits one transaction and waits for its confirmation.
func (x *execution) step(ctx context.Context, name string, send func() (contracts.Pending, error)) (*types.Receipt, error) {
	x.enter(PhaseSubmitting)
	pending, err := send()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	observability.Actions().RecordTransaction(string(x.outcome.Action), name)
	x.outcome.Transactions = append(x.outcome.Transactions, Transaction{
		Step:   name,
		Method: pending.Method(),
		Hash:   pending.Hash(),
		Status: "pending",
	})
	last := &x.outcome.Transactions[len(x.outcome.Transactions)-1]
	x.o.logger.Info("transaction submitted",
		"action", string(x.outcome.Action),
		"action_id", x.outcome.ActionID.String(),
		"step", name,
		"tx", pending.Hash().Hex(),
	)

	x.enter(PhaseAwaitingConfirmation)
	receipt, err := pending.Wait(ctx)
	if err != nil {
		last.Status = "failed"
		return receipt, fmt.Errorf("%s: %w", name, err)
	}
	last.Status = "confirmed"
	x.enter(PhaseConfirmed)
	return receipt, nil
}

func (o *Orchestrator) run(ctx context.Context, action Action, attrs []attribute.KeyValue, body func(context.Context, *execution) error, refresh ...portfolio.Resource) Outcome {
	outcome := Outcome{
		ActionID:     o.newID(),
		Action:       action,
		Phase:        PhaseIdle,
		Transactions: []Transaction{},
		StartedAt:    o.now(),
	}
	attrs = append(attrs,
		attribute.String("action", string(action)),
		attribute.String("action_id", outcome.ActionID.String()),
	)
	ctx, span := otel.Tracer().Start(ctx, "orchestrator."+string(action), trace.WithAttributes(attrs...))
	x := &execution{o: o, outcome: &outcome, span: span}

	err := body(ctx, x)
	if err == nil && len(refresh) > 0 {
		x.enter(PhaseRefreshing)
		err = o.refresh(ctx, refresh)
	}

	outcome.FinishedAt = o.now()
	label := "confirmed"
	if err != nil {
		outcome.FailedIn = outcome.Phase
		outcome.Kind = classify(outcome.Phase, err)
		outcome.Err = fmt.Errorf("%s: %w", action, err)
		outcome.Message = outcome.Err.Error()
		label = string(outcome.Kind)
		x.enter(PhaseFailed)
		o.logger.Warn("action failed",
			"action", string(action),
			"action_id", outcome.ActionID.String(),
			"failed_in", string(outcome.FailedIn),
			"kind", string(outcome.Kind),
			"error", err,
		)
	} else {
		o.logger.Info("action completed",
			"action", string(action),
			"action_id", outcome.ActionID.String(),
			"transactions", len(outcome.Transactions),
		)
	}
	x.enter(PhaseIdle)
	if err != nil {
		// Report where the machine stopped, not the idle state it returns to.
		outcome.Phase = PhaseFailed
	}
	otel.EndSpan(span, outcome.Err)
	observability.Actions().Observe(string(action), label, outcome.FinishedAt.Sub(outcome.StartedAt))
	return outcome
}

func (o *Orchestrator) refresh(ctx context.Context, resources []portfolio.Resource) error {
	if o.refresher == nil {
		return nil
	}
	var group errgroup.Group
	for _, resource := range resources {
		switch resource {
		case portfolio.ResourcePosition:
			group.Go(func() error { return o.refresher.RefreshPosition(ctx) })
		case portfolio.ResourceInventory:
			group.Go(func() error { return o.refresher.RefreshInventory(ctx) })
		}
	}
	return group.Wait()
}

func validToken(nftAddress common.Address, tokenID *big.Int) error {
	if nftAddress == (common.Address{}) {
		return fmt.Errorf("%w: nft contract required", ErrPrecondition)
	}
	if tokenID == nil || tokenID.Sign() < 0 {
		return fmt.Errorf("%w: token id required", ErrPrecondition)
	}
	return nil
}

func tokenAttrs(nftAddress common.Address, tokenID *big.Int) []attribute.KeyValue {
	id := ""
	if tokenID != nil {
		id = tokenID.String()
	}
	return []attribute.KeyValue{
		attribute.String("contract", nftAddress.Hex()),
		attribute.String("token_id", id),
	}
}
