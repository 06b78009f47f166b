package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"nftlend/portfolio"
)

type positionOutput struct {
	Account           string           `json:"account,omitempty"`
	Connected         bool             `json:"connected"`
	Balance           *decimal.Decimal `json:"balance,omitempty"`
	Debt              *decimal.Decimal `json:"debt,omitempty"`
	BorrowCapacity    *decimal.Decimal `json:"borrowCapacity,omitempty"`
	AvailableToBorrow *decimal.Decimal `json:"availableToBorrow,omitempty"`
}

func (c *cli) newPositionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position",
		Short: "Show balance, debt and borrow capacity of the wallet account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			if err := a.refresher.RefreshPosition(cmd.Context()); err != nil && !errors.Is(err, portfolio.ErrDisconnected) {
				return fmt.Errorf("load position: %w", err)
			}
			out := toPositionOutput(a.view.Snapshot())
			if c.opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return renderPosition(cmd.OutOrStdout(), out)
		},
	}
}

func (c *cli) newInventoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "List owned NFTs and NFTs posted as collateral",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			if err := a.refresher.RefreshInventory(cmd.Context()); err != nil && !errors.Is(err, portfolio.ErrDisconnected) {
				return fmt.Errorf("load inventory: %w", err)
			}
			snap := a.view.Snapshot()
			if c.opts.jsonOutput {
				items := snap.Inventory
				if items == nil {
					items = []portfolio.CollateralAsset{}
				}
				return writeJSON(cmd.OutOrStdout(), items)
			}
			return renderInventory(cmd.OutOrStdout(), snap)
		},
	}
}

func toPositionOutput(snap portfolio.Snapshot) positionOutput {
	out := positionOutput{Connected: snap.Connected}
	if snap.Connected {
		out.Account = snap.Account.Hex()
	}
	if p := snap.Position; p != nil {
		available := p.AvailableToBorrow()
		out.Balance = &p.Balance
		out.Debt = &p.Debt
		out.BorrowCapacity = &p.BorrowCapacity
		out.AvailableToBorrow = &available
	}
	return out
}

func renderPosition(w io.Writer, out positionOutput) error {
	if !out.Connected || out.Balance == nil {
		_, err := fmt.Fprintln(w, "wallet not connected")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "account\t%s\n", out.Account)
	fmt.Fprintf(tw, "balance\t%s\n", out.Balance.String())
	fmt.Fprintf(tw, "debt\t%s\n", out.Debt.String())
	fmt.Fprintf(tw, "borrow capacity\t%s\n", out.BorrowCapacity.String())
	fmt.Fprintf(tw, "available to borrow\t%s\n", out.AvailableToBorrow.String())
	return tw.Flush()
}

func renderInventory(w io.Writer, snap portfolio.Snapshot) error {
	if !snap.Connected {
		_, err := fmt.Fprintln(w, "wallet not connected")
		return err
	}
	if len(snap.Inventory) == 0 {
		_, err := fmt.Fprintln(w, "no NFTs")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTRACT\tTOKEN ID\tNAME\tCOLLATERAL")
	for _, item := range snap.Inventory {
		collateral := "no"
		if item.HeldAsCollateral {
			collateral = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.Contract.Hex(), item.TokenID, item.Name, collateral)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
