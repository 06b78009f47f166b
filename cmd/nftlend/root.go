package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nftlend/gateway/middleware"
	"nftlend/gateway/routes"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is everything a command needs once the configuration is wired.
type app struct {
	logger    *slog.Logger
	view      routes.View
	refresher routes.Refresher
	actions   routes.Actions
	health    func(ctx context.Context) error
	listen    string
	limits    map[string]middleware.RateLimit
	auth      middleware.AuthConfig
	// background runs for the lifetime of `serve`.
	background []func(ctx context.Context) error
	close      func(ctx context.Context) error
}

type globalOptions struct {
	configPath string
	jsonOutput bool
}

type cli struct {
	wire    func(ctx context.Context, opts globalOptions) (*app, error)
	opts    globalOptions
	current *app
}

// Execute runs the nftlend command line until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{wire: func(ctx context.Context, opts globalOptions) (*app, error) {
		return wireApp(ctx, opts, os.Stderr)
	}}
	err := c.rootCmd().ExecuteContext(ctx)
	if closeErr := c.shutdown(); err == nil {
		err = closeErr
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nftlend",
		Short:         "Lend, borrow and post NFT collateral against the lending contract",
		Long:          "nftlend drives a deployed NFT-collateralised lending contract from the terminal: it shows the wallet's position and NFT inventory, runs lend, borrow, repay and collateral actions through an external signer, and can serve the same view over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.opts.configPath, "config", "", "path to a TOML or YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&c.opts.jsonOutput, "json", false, "print machine-readable JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		c.newPositionCmd(),
		c.newInventoryCmd(),
		c.newCollateralCmd(),
		c.newServeCmd(),
	)
	for _, cmd := range c.newActionCmds() {
		rootCmd.AddCommand(cmd)
	}
	return rootCmd
}

// app wires the configuration on first use.
func (c *cli) app(cmd *cobra.Command) (*app, error) {
	if c.current != nil {
		return c.current, nil
	}
	a, err := c.wire(cmd.Context(), c.opts)
	if err != nil {
		return nil, err
	}
	c.current = a
	return a, nil
}

func (c *cli) shutdown() error {
	if c.current == nil || c.current.close == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.current.close(ctx)
	c.current = nil
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
