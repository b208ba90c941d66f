// Command checkoutctl talks to a checkout-service over HTTP: availability,
// ticket purchase and upgrade through the checkout wizard, and the organizer
// waitlist and attendance actions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/backend"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/config"
	pkgctx "github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/context"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
)

type app struct {
	apiURL  string
	token   string
	timeout time.Duration
	out     io.Writer
}

func (a *app) client() *backend.Client {
	cfg := backend.DefaultConfig(a.apiURL)
	cfg.Token = a.token
	if a.timeout > 0 {
		cfg.ReadTimeout = a.timeout
		cfg.WriteTimeout = a.timeout
	}
	return backend.New(cfg)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(a *app) *cobra.Command {
	cfg := config.LoadClient()

	root := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "Buy, upgrade and manage event tickets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.out = cmd.OutOrStdout()
		},
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api", cfg.APIURL, "checkout-service base URL (CHECKOUT_API_URL)")
	root.PersistentFlags().StringVar(&a.token, "token", cfg.Token, "bearer token (CHECKOUT_TOKEN)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", cfg.Timeout, "per-request timeout")

	root.AddCommand(
		newAvailabilityCmd(a),
		newTicketsCmd(a),
		newBuyCmd(a),
		newUpgradeCmd(a),
		newAttendeesCmd(a),
		newWaitlistCmd(a),
		newNoShowCmd(a),
		newRestoreCmd(a),
		newTokenCmd(a),
	)
	return root
}

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}

func main() {
	logger.InitWithWriter(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = pkgctx.WithRequestID(ctx, "cli-"+uuid.NewString())

	if err := newRootCmd(&app{out: os.Stdout}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
