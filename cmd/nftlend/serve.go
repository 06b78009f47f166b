package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nftlend/gateway/middleware"
	"nftlend/gateway/routes"
)

func (c *cli) newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the position, inventory and actions API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			addr := a.listen
			if listen != "" {
				addr = listen
			}
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a, listener)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overriding http.Listen")
	return cmd
}

// serve runs the HTTP API and the background session followers until ctx is
// done or one of them fails.
func serve(ctx context.Context, a *app, listener net.Listener) error {
	handler := routes.New(routes.Config{
		View:          a.view,
		Refresher:     a.refresher,
		Actions:       a.actions,
		Health:        a.health,
		RateLimiter:   middleware.NewRateLimiter(a.limits, a.logger),
		Authenticator: middleware.NewAuthenticator(a.auth, a.logger),
		Observability: middleware.NewObservability(a.logger, nil, nil),
		Logger:        a.logger,
	})
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, run := range a.background {
		run := run
		group.Go(func() error { return run(ctx) })
	}
	group.Go(func() error {
		a.logger.Info("listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
