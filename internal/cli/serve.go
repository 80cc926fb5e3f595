package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"invitation-app/internal/handler"
	"invitation-app/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the public RSVP pages",
		Long: `Serve the public RSVP routes. When WhatsApp is enabled the linked device
is connected too and RSVP replies sent to it are recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				if addr == "" {
					addr = a.cfg.PublicAddr
				}
				listener, err := net.Listen("tcp", addr)
				if err != nil {
					return fmt.Errorf("listen on %s: %w", addr, err)
				}
				return serve(ctx, a, listener)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default PUBLIC_ADDR)")
	return cmd
}

// serve runs the public server on listener until ctx is done.
func serve(ctx context.Context, a *app, listener net.Listener) error {
	limiter := ratelimit.New(a.cfg.RateLimitWindow, a.cfg.RateLimitMax)
	public := handler.NewPublicHandler(a.events, a.renderer, a.notifier, limiter, handler.PublicConfig{
		UploadsDir:        a.cfg.UploadsDir,
		TrustProxyHeaders: a.cfg.TrustProxyHeaders,
	}, a.log)

	svc, err := a.whatsApp(ctx, a.out.errWriter())
	if err != nil {
		listener.Close()
		return err
	}
	if svc != nil {
		replies := handler.NewRSVPHandler(a.events, svc, a.notifier, a.log)
		svc.SetMessageHandler(replies.HandleMessage)
		a.log.Info().Msg("listening for WhatsApp replies")
	}

	srv := &http.Server{
		Handler:           public.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	a.log.Info().Str("addr", listener.Addr().String()).Str("domain", a.cfg.PublicDomain).Msg("serving rsvp pages")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
