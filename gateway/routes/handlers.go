package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"nftlend/orchestrator"
	"nftlend/portfolio"
)

const requestLimit = 1 << 16 // 64 KiB

type api struct {
	view      View
	refresher Refresher
	actions   Actions
	health    func(ctx context.Context) error
	logger    *slog.Logger
}

type positionView struct {
	Balance           decimal.Decimal `json:"balance"`
	Debt              decimal.Decimal `json:"debt"`
	BorrowCapacity    decimal.Decimal `json:"borrowCapacity"`
	AvailableToBorrow decimal.Decimal `json:"availableToBorrow"`
}

type positionResponse struct {
	Account   string        `json:"account,omitempty"`
	Connected bool          `json:"connected"`
	Position  *positionView `json:"position"`
	Seq       uint64        `json:"seq"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type assetView struct {
	Contract         string `json:"contract"`
	TokenID          string `json:"tokenId"`
	Name             string `json:"name,omitempty"`
	Symbol           string `json:"symbol,omitempty"`
	HeldAsCollateral bool   `json:"heldAsCollateral"`
}

type inventoryResponse struct {
	Account   string      `json:"account,omitempty"`
	Connected bool        `json:"connected"`
	Items     []assetView `json:"items"`
	Seq       uint64      `json:"seq"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type collateralRequest struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(r.Context()); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getPosition renders the cached position, loading it first when nothing is
// cached yet or ?refresh=true is passed.
func (a *api) getPosition(w http.ResponseWriter, r *http.Request) {
	snap := a.view.Snapshot()
	if snap.Position == nil || wantsRefresh(r) {
		if !a.reload(w, r, a.refresher.RefreshPosition) {
			return
		}
		snap = a.view.Snapshot()
	}
	resp := positionResponse{
		Connected: snap.Connected,
		Seq:       snap.PositionSeq,
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.Connected {
		resp.Account = snap.Account.Hex()
	}
	if snap.Position != nil {
		resp.Position = &positionView{
			Balance:           snap.Position.Balance,
			Debt:              snap.Position.Debt,
			BorrowCapacity:    snap.Position.BorrowCapacity,
			AvailableToBorrow: snap.Position.AvailableToBorrow(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) getInventory(w http.ResponseWriter, r *http.Request) {
	snap := a.view.Snapshot()
	if snap.Inventory == nil || wantsRefresh(r) {
		if !a.reload(w, r, a.refresher.RefreshInventory) {
			return
		}
		snap = a.view.Snapshot()
	}
	resp := inventoryResponse{
		Connected: snap.Connected,
		Items:     make([]assetView, 0, len(snap.Inventory)),
		Seq:       snap.InventorySeq,
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.Connected {
		resp.Account = snap.Account.Hex()
	}
	for _, item := range snap.Inventory {
		resp.Items = append(resp.Items, assetView{
			Contract:         item.Contract.Hex(),
			TokenID:          item.TokenID.String(),
			Name:             item.Name,
			Symbol:           item.Symbol,
			HeldAsCollateral: item.HeldAsCollateral,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// reload runs load and reports whether rendering should continue. A
// disconnected wallet is rendered as an absent view, not an error.
func (a *api) reload(w http.ResponseWriter, r *http.Request, load func(context.Context) error) bool {
	err := load(r.Context())
	switch {
	case err == nil, errors.Is(err, portfolio.ErrDisconnected):
		return true
	default:
		a.logger.Warn("view reload failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusBadGateway, err)
		return false
	}
}

func (a *api) postAction(w http.ResponseWriter, r *http.Request) {
	var run func(context.Context) orchestrator.Outcome
	switch chi.URLParam(r, "action") {
	case "lend":
		run = a.actions.Lend
	case "withdraw":
		run = a.actions.Withdraw
	case "borrow":
		run = a.actions.Borrow
	case "repay":
		run = a.actions.Repay
	case "claim":
		run = a.actions.ClaimNFT
	default:
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("unknown action %q", chi.URLParam(r, "action")))
		return
	}
	writeOutcome(w, run(r.Context()))
}

func (a *api) postCollateral(w http.ResponseWriter, r *http.Request) {
	operation := chi.URLParam(r, "operation")
	if operation != "post" && operation != "withdraw" {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("unknown collateral operation %q", operation))
		return
	}
	var req collateralRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	nft, tokenID, err := req.parse()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if operation == "post" {
		writeOutcome(w, a.actions.PostCollateral(r.Context(), nft, tokenID))
		return
	}
	writeOutcome(w, a.actions.WithdrawCollateral(r.Context(), nft, tokenID))
}

func (req collateralRequest) parse() (common.Address, *big.Int, error) {
	contract := strings.TrimSpace(req.Contract)
	if !common.IsHexAddress(contract) {
		return common.Address{}, nil, fmt.Errorf("contract %q is not a hex address", req.Contract)
	}
	tokenID, ok := new(big.Int).SetString(strings.TrimSpace(req.TokenID), 10)
	if !ok || tokenID.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("tokenId %q is not a non-negative integer", req.TokenID)
	}
	return common.HexToAddress(contract), tokenID, nil
}

func writeOutcome(w http.ResponseWriter, outcome orchestrator.Outcome) {
	writeJSON(w, outcomeStatus(outcome.Kind), outcome)
}

func outcomeStatus(kind orchestrator.ErrorKind) int {
	switch kind {
	case orchestrator.KindNone:
		return http.StatusOK
	case orchestrator.KindPrecondition:
		return http.StatusConflict
	case orchestrator.KindConnection:
		return http.StatusServiceUnavailable
	case orchestrator.KindRejected:
		return http.StatusUnprocessableEntity
	case orchestrator.KindRead:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func wantsRefresh(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("refresh"), "true")
}

func decodeRequest(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
