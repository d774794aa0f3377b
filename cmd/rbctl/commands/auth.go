package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/policy"
)

var errAuthDisabled = errors.New("auth is not configured in the settings file")

func newLoginCommand() *cobra.Command {
	var (
		username string
		password string
		remember bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session token",
		Long: `Log in with a username and password. Without --password the password
is read from the first line of standard input.

The session token is stored in the local store so later commands run as the
logged in user. With --remember=false it only lives for this process, which
is useful for scripting a single command.`,
		Example: `  rbctl login --username alice
  echo "$PASSWORD" | rbctl login --username alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.auth == nil {
					return errAuthDisabled
				}
				user, err := a.auth.Login(ctx, engine.Credentials{
					"username": username,
					"password": password,
					"remember": remember,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Username)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "user to log in as")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	cmd.Flags().BoolVar(&remember, "remember", true, "keep the session across invocations")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.auth == nil {
					return errAuthDisabled
				}
				if err := a.auth.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.auth == nil {
					return errAuthDisabled
				}
				user, err := a.auth.CheckAuth(ctx)
				if err != nil {
					return err
				}
				identity, err := a.auth.GetIdentity(ctx, user)
				if err != nil {
					return err
				}

				out := map[string]any{
					"id":       user.ID,
					"username": user.Username,
					"fullName": identity.FullName,
					"roles":    user.Roles,
				}
				if user.Tenant != "" {
					tenant, err := a.auth.GetTenantIdentity(ctx, user)
					if err != nil {
						return err
					}
					out["tenant"] = tenant
				}
				return printValue(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newCanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "can ACTION RESOURCE [KEY]",
		Short: "Check whether the logged in user may perform an action",
		Long: `Check whether the logged in user may perform an action on a resource,
or on one of its records when KEY is given. Exits non-zero when denied.`,
		Example: `  rbctl can create posts
  rbctl can publish posts 1`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.auth == nil {
					return errAuthDisabled
				}
				r, err := a.resource(args[1])
				if err != nil {
					return err
				}
				subject := policy.Subject{Resource: r.Name()}
				if len(args) == 3 {
					resp, err := r.GetOne(ctx, args[2], nil)
					if err != nil {
						return err
					}
					subject.Record = resp.Record()
				}

				user, err := a.sessionUser(ctx)
				if err != nil {
					return err
				}
				allowed, err := a.auth.Can(ctx, user, args[0], subject)
				if err != nil {
					return err
				}
				if !allowed {
					fmt.Fprintln(cmd.OutOrStdout(), "no")
					return fmt.Errorf("%w: %s on %s", errAccessDenied, args[0], r.Name())
				}
				fmt.Fprintln(cmd.OutOrStdout(), "yes")
				return nil
			})
		},
	}
}
