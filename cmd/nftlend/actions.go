package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"nftlend/gateway/routes"
	"nftlend/orchestrator"
)

type actionRunner func(routes.Actions, context.Context) orchestrator.Outcome

func (c *cli) newActionCmds() []*cobra.Command {
	return []*cobra.Command{
		c.newActionCmd("lend", "Deposit the configured lend amount", routes.Actions.Lend),
		c.newActionCmd("withdraw", "Withdraw the configured amount of lent funds", routes.Actions.Withdraw),
		c.newActionCmd("borrow", "Borrow the configured amount against posted collateral", routes.Actions.Borrow),
		c.newActionCmd("repay", "Repay the full outstanding debt", routes.Actions.Repay),
		c.newActionCmd("claim", "Mint a free NFT from the giveaway contract", routes.Actions.ClaimNFT),
	}
}

func (c *cli) newActionCmd(use, short string, run actionRunner) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			return c.report(cmd, run(a.actions, cmd.Context()))
		},
	}
}

func (c *cli) newCollateralCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "collateral",
		Short: "Post or withdraw NFT collateral",
	}
	root.AddCommand(
		c.newCollateralVerbCmd("post", "Approve if needed and deposit an NFT as collateral", routes.Actions.PostCollateral),
		c.newCollateralVerbCmd("withdraw", "Withdraw a posted NFT back to the wallet", routes.Actions.WithdrawCollateral),
	)
	return root
}

func (c *cli) newCollateralVerbCmd(use, short string, run func(routes.Actions, context.Context, common.Address, *big.Int) orchestrator.Outcome) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <nft-contract> <token-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nft, tokenID, err := parseToken(args[0], args[1])
			if err != nil {
				return err
			}
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			return c.report(cmd, run(a.actions, cmd.Context(), nft, tokenID))
		},
	}
}

func parseToken(contract, token string) (common.Address, *big.Int, error) {
	contract = strings.TrimSpace(contract)
	if !common.IsHexAddress(contract) {
		return common.Address{}, nil, fmt.Errorf("nft contract %q is not a hex address", contract)
	}
	tokenID, ok := new(big.Int).SetString(strings.TrimSpace(token), 10)
	if !ok || tokenID.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("token id %q is not a non-negative integer", token)
	}
	return common.HexToAddress(contract), tokenID, nil
}

// report prints the outcome and turns a failed one into the command error.
func (c *cli) report(cmd *cobra.Command, outcome orchestrator.Outcome) error {
	var err error
	if c.opts.jsonOutput {
		err = writeJSON(cmd.OutOrStdout(), outcome)
	} else {
		err = renderOutcome(cmd.OutOrStdout(), outcome)
	}
	if err != nil {
		return err
	}
	if !outcome.OK() {
		return fmt.Errorf("%s failed (%s) while %s: %s", outcome.Action, outcome.Kind, outcome.FailedIn, outcome.Message)
	}
	return nil
}

func renderOutcome(w io.Writer, outcome orchestrator.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "action\t%s\n", outcome.Action)
	fmt.Fprintf(tw, "id\t%s\n", outcome.ActionID)
	for _, tx := range outcome.Transactions {
		fmt.Fprintf(tw, "tx %s\t%s %s\n", tx.Step, tx.Hash.Hex(), tx.Status)
	}
	if outcome.TokenID != nil {
		fmt.Fprintf(tw, "token id\t%s\n", outcome.TokenID)
	}
	if outcome.OK() {
		fmt.Fprintf(tw, "result\tok\n")
	} else {
		fmt.Fprintf(tw, "result\tfailed\n")
	}
	return tw.Flush()
}
