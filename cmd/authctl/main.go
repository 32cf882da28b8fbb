// File: cmd/authctl/main.go
package main

import (
	"fmt"
	"io"
	"log" // Standard log for failures before zap is active
	"os"

	"learnapp_auth/internal/app"
	"learnapp_auth/internal/config"
	"learnapp_auth/internal/gateway"
	"learnapp_auth/internal/platform/metrics"
	"learnapp_auth/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session is everything one authctl invocation needs.
type session struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	App      *app.App

	// In is the session's only reader over stdin; every prompt goes through it.
	In *lineReader `wire:"-"`
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideMetrics(cfg *config.Config, reg *prometheus.Registry) (*metrics.Recorder, error) {
	if !cfg.MetricsEnabled {
		return nil, nil
	}
	return metrics.New(reg)
}

// Global flags available to all subcommands.
var (
	gatewayMode string
	autoConsent bool
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the root command for the authctl CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authctl",
		Short: "authctl - drive the auth session manager from a terminal",
		Long: `authctl runs the auth session manager against the in-memory provider or
Google Identity Toolkit and prints the session state after each action.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&gatewayMode, "gateway", "", "override GATEWAY_MODE (memory|identitytoolkit)")
	cmd.PersistentFlags().BoolVar(&autoConsent, "auto-consent", false, "approve federated consent without prompting (memory gateway only)")

	cmd.AddCommand(NewSignupCmd())
	cmd.AddCommand(NewLoginCmd())
	cmd.AddCommand(NewLogoutCmd())
	cmd.AddCommand(NewResetPasswordCmd())
	cmd.AddCommand(NewPhoneCmd())
	cmd.AddCommand(NewFederatedCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewShellCmd())

	return cmd
}

// withSession loads config, builds and starts an App, runs fn, then shuts down.
func withSession(cmd *cobra.Command, fn func(s *session) error) error {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("FATAL: Failed to load configuration: %v", err)
		return err
	}
	if gatewayMode != "" {
		cfg.GatewayMode = gatewayMode
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	in := newLineReader(cmd.InOrStdin())
	var consent gateway.ConsentPrompter = newStdinConsent(in, cmd.OutOrStdout())
	if autoConsent {
		consent = gateway.ConsentFunc(approveConsent)
	}

	s, cleanup, err := initializeSession(cfg, consent)
	if err != nil {
		log.Printf("FATAL: Failed to initialize session: %v", err)
		return err
	}
	defer func() {
		cleanup()
		_ = s.Logger.Sync()
	}()
	s.In = in

	s.App.Start()
	defer s.App.Shutdown()

	return fn(s)
}

func printState(w io.Writer, st store.State) {
	fmt.Fprintf(w, "status=%s loading=%t", st.Status, st.Loading)
	if st.User != nil {
		fmt.Fprintf(w, " uid=%s", st.User.ID)
		if st.User.DisplayName != nil {
			fmt.Fprintf(w, " name=%q", *st.User.DisplayName)
		}
		if st.User.Email != nil {
			fmt.Fprintf(w, " email=%s", *st.User.Email)
		}
		if st.User.PhoneNumber != nil {
			fmt.Fprintf(w, " phone=%s", *st.User.PhoneNumber)
		}
	}
	if st.ConfirmationResult != nil {
		fmt.Fprintf(w, " challenge=%s", st.ConfirmationResult.PhoneNumber)
	}
	if st.Error != nil {
		fmt.Fprintf(w, " error=%s (%s)", st.Error.Kind, st.Error.Message)
	}
	fmt.Fprintln(w)
}
