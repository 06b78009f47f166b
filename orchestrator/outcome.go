package orchestrator

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"nftlend/contracts"
	"nftlend/portfolio"
)

// Action names a user-initiated operation.
type Action string

const (
	ActionLend               Action = "lend"
	ActionWithdraw           Action = "withdraw"
	ActionBorrow             Action = "borrow"
	ActionRepay              Action = "repay"
	ActionPostCollateral     Action = "post_collateral"
	ActionWithdrawCollateral Action = "withdraw_collateral"
	ActionClaim              Action = "claim"
)

// Phase is a state of the per-action machine:
// Idle → Submitting → AwaitingConfirmation → Confirmed → Refreshing → Idle,
// with any error moving to Failed and then back to Idle.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseSubmitting           Phase = "submitting"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseConfirmed            Phase = "confirmed"
	PhaseRefreshing           Phase = "refreshing"
	PhaseFailed               Phase = "failed"
)

// ErrorKind classifies why an action failed.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindConnection   ErrorKind = "connection"
	KindRead         ErrorKind = "read"
	KindRejected     ErrorKind = "rejected"
	KindPrecondition ErrorKind = "precondition"
)

var (
	// ErrPrecondition marks an action refused before anything was submitted.
	ErrPrecondition = errors.New("orchestrator: precondition failed")
	// ErrNothingToRepay is returned by Repay when the account has no debt.
	ErrNothingToRepay = errors.New("orchestrator: no outstanding debt")
)

// Transaction is one confirmed or attempted on-chain step of an action.
type Transaction struct {
	Step   string      `json:"step"`
	Method string      `json:"method"`
	Hash   common.Hash `json:"hash"`
	Status string      `json:"status"`
}

// Outcome is the typed result of every action.
type Outcome struct {
	ActionID     uuid.UUID     `json:"actionId"`
	Action       Action        `json:"action"`
	Phase        Phase         `json:"phase"`
	FailedIn     Phase         `json:"failedIn,omitempty"`
	Transactions []Transaction `json:"transactions"`
	TokenID      *big.Int      `json:"tokenId,omitempty"`
	Kind         ErrorKind     `json:"errorKind,omitempty"`
	Message      string        `json:"error,omitempty"`
	Err          error         `json:"-"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
}

// OK reports whether the action completed, refresh included.
func (o Outcome) OK() bool { return o.Err == nil && o.Kind == KindNone }

// classify maps an error raised during phase onto an ErrorKind.
func classify(phase Phase, err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, contracts.ErrNoSigner), errors.Is(err, portfolio.ErrDisconnected):
		return KindConnection
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, contracts.ErrReadFailure), phase == PhaseRefreshing:
		return KindRead
	default:
		return KindRejected
	}
}
