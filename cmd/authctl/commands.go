// File: cmd/authctl/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"learnapp_auth/internal/common"
	"learnapp_auth/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// report prints the state and the error, if any, of a finished action.
func report(cmd *cobra.Command, s *session, err error) error {
	printState(cmd.OutOrStdout(), s.App.Store().Snapshot())
	if authErr, ok := common.IsAuthError(err); ok {
		return fmt.Errorf("%s: %s", authErr.Kind, authErr.Message)
	}
	return err
}

func validationFailure(err error) error {
	var verr *common.ValidationError
	if errors.As(err, &verr) {
		msgs := make([]string, 0, len(verr.Fields))
		for _, m := range verr.Fields {
			msgs = append(msgs, m)
		}
		return fmt.Errorf("%s", strings.Join(msgs, " "))
	}
	return err
}

// NewSignupCmd creates the signup subcommand.
func NewSignupCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := common.ValidateSignup(email, password, name); err != nil {
				return validationFailure(err)
			}
			return withSession(cmd, func(s *session) error {
				_, err := s.App.Auth().Signup(cmd.Context(), email, password, name)
				return report(cmd, s, err)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

// NewLoginCmd creates the login subcommand.
func NewLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := common.ValidateCredentials(email, password); err != nil {
				return validationFailure(err)
			}
			return withSession(cmd, func(s *session) error {
				_, err := s.App.Auth().Login(cmd.Context(), email, password)
				return report(cmd, s, err)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

// NewLogoutCmd creates the logout subcommand.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the provider session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				return report(cmd, s, s.App.Auth().Logout(cmd.Context()))
			})
		},
	}
}

// NewResetPasswordCmd creates the reset-password subcommand.
func NewResetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Send a password reset notification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				err := s.App.Auth().ResetPassword(cmd.Context(), email)
				if err == nil {
					cmd.Println("If an account exists for this address, a reset link is on its way.")
				}
				return report(cmd, s, err)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

// NewPhoneCmd creates the phone subcommand.
func NewPhoneCmd() *cobra.Command {
	var number, code string
	cmd := &cobra.Command{
		Use:   "phone",
		Short: "Sign in with a phone number and a one-time code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := common.ValidatePhoneNumber(number); err != nil {
				return validationFailure(err)
			}
			return withSession(cmd, func(s *session) error {
				ctx := cmd.Context()
				if _, err := s.App.Phone().SendCode(ctx, number); err != nil {
					return report(cmd, s, err)
				}
				if code != "" {
					_, err := s.App.Phone().VerifyCode(ctx, code)
					return report(cmd, s, err)
				}

				for {
					cmd.Print("Enter the code: ")
					line, err := s.In.ReadLine()
					if err != nil {
						return report(cmd, s, common.ErrUserCancelled)
					}
					_, err = s.App.Phone().VerifyCode(ctx, strings.TrimSpace(line))
					if errors.Is(err, common.ErrChallengeMismatch) {
						cmd.Println("Incorrect code, try again.")
						continue
					}
					return report(cmd, s, err)
				}
			})
		},
	}
	cmd.Flags().StringVar(&number, "number", "", "phone number in E.164 format, e.g. +12025550123")
	cmd.Flags().StringVar(&code, "code", "", "verification code (prompted when empty)")
	return cmd
}

// NewFederatedCmd creates the federated subcommand.
func NewFederatedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "federated",
		Short: "Sign in with Google",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				_, err := s.App.Auth().LoginWithFederatedProvider(cmd.Context())
				return report(cmd, s, err)
			})
		},
	}
}

// NewWatchCmd creates the watch subcommand.
func NewWatchCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print every session state change until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				printState(cmd.OutOrStdout(), s.App.Store().Snapshot())
				unsub := s.App.Store().Subscribe(func(st store.State) {
					printState(cmd.OutOrStdout(), st)
				})
				defer unsub()

				unmount := s.App.MountSurface("watch")
				defer unmount()

				if metricsAddr != "" {
					srv := &http.Server{
						Addr:              metricsAddr,
						Handler:           promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}),
						ReadHeaderTimeout: 5 * time.Second,
					}
					go func() {
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							s.Logger.Error("Metrics server failed", zap.Error(err))
						}
					}()
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						_ = srv.Shutdown(shutdownCtx)
					}()
					s.Logger.Info("Serving metrics", zap.String("addr", metricsAddr))
				}

				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9091")
	return cmd
}
