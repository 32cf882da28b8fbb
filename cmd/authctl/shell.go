// File: cmd/authctl/shell.go
package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"learnapp_auth/internal/common"

	"github.com/spf13/cobra"
)

const shellHelp = `commands:
  signup <email> <password> <name>
  login <email> <password>
  logout
  reset <email>
  phone <+number>
  verify <code>
  federated
  mount <surface>     start the fallback poll for a surface
  unmount <surface>
  clear               dismiss the current error
  state
  quit`

// NewShellCmd creates the shell subcommand: one session, many actions.
func NewShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run several actions against one session interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				return runShell(cmd, s, s.In, cmd.OutOrStdout())
			})
		},
	}
}

func runShell(cmd *cobra.Command, s *session, in *lineReader, out io.Writer) error {
	ctx := cmd.Context()
	mounted := make(map[string]func())
	defer func() {
		for _, unmount := range mounted {
			unmount()
		}
	}()

	fmt.Fprintln(out, shellHelp)
	for {
		fmt.Fprint(out, "> ")
		line, readErr := in.ReadLine()
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return readErr
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		var err error
		switch cmdName, rest := args[0], args[1:]; {
		case cmdName == "quit" || cmdName == "exit":
			return nil
		case cmdName == "signup" && len(rest) >= 3:
			_, err = s.App.Auth().Signup(ctx, rest[0], rest[1], strings.Join(rest[2:], " "))
		case cmdName == "login" && len(rest) == 2:
			_, err = s.App.Auth().Login(ctx, rest[0], rest[1])
		case cmdName == "logout":
			err = s.App.Auth().Logout(ctx)
		case cmdName == "reset" && len(rest) == 1:
			err = s.App.Auth().ResetPassword(ctx, rest[0])
		case cmdName == "phone" && len(rest) == 1:
			if err = common.ValidatePhoneNumber(rest[0]); err != nil {
				fmt.Fprintln(out, validationFailure(err))
				continue
			}
			_, err = s.App.Phone().SendCode(ctx, rest[0])
		case cmdName == "verify" && len(rest) == 1:
			_, err = s.App.Phone().VerifyCode(ctx, rest[0])
		case cmdName == "federated":
			_, err = s.App.Auth().LoginWithFederatedProvider(ctx)
		case cmdName == "mount" && len(rest) == 1:
			if _, ok := mounted[rest[0]]; !ok {
				mounted[rest[0]] = s.App.MountSurface(rest[0])
			}
		case cmdName == "unmount" && len(rest) == 1:
			if unmount, ok := mounted[rest[0]]; ok {
				unmount()
				delete(mounted, rest[0])
			}
		case cmdName == "clear":
			s.App.Auth().ClearError()
		case cmdName == "state":
		default:
			fmt.Fprintln(out, shellHelp)
			continue
		}

		printState(out, s.App.Store().Snapshot())
		if authErr, ok := common.IsAuthError(err); ok {
			fmt.Fprintf(out, "error: %s\n", authErr.Message)
		}
	}
}
