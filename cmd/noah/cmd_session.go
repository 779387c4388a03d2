package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noah-network/noah/pkg/auth"
	"github.com/noah-network/noah/pkg/cli"
	"github.com/noah-network/noah/pkg/util"
)

func newLoginCmd(a *App) *cobra.Command {
	var user, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Long: `Log in to the inventory API. The password is read from the terminal
without echo, or from stdin when stdin is not a terminal.

Examples:
  noah login --user admin
  echo "$PASSWORD" | noah login --user admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" && a.settings != nil {
				user = a.settings.LastUser
			}
			reader := bufio.NewReader(a.in)
			out := cmd.OutOrStdout()
			if user == "" {
				fmt.Fprint(out, "User: ")
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading user: %w", err)
				}
				user = strings.TrimSpace(line)
			}
			if password == "" {
				p, err := readPassword(out, reader, a.in)
				if err != nil {
					return err
				}
				password = p
			}

			if err := a.session.Login(cmd.Context(), user, password); err != nil {
				if auth.IsLoginRejected(err) {
					return fmt.Errorf("login rejected: %s", a.session.Err())
				}
				return fmt.Errorf("login failed: %w", err)
			}

			if a.settings != nil {
				a.settings.SetLastUser(user)
			}
			// Reload so edits made since startup are not overwritten
			if s, err := a.loadSettings(); err != nil {
				util.Warnf("Could not load settings: %v", err)
			} else {
				s.SetLastUser(user)
				if err := a.saveSettings(s); err != nil {
					util.Warnf("Could not save settings: %v", err)
				}
			}
			fmt.Fprintf(out, "%s as %s\n", green("Logged in"), bold(user))
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "User name (default: last user)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

// readPassword prompts without echo on a terminal and reads a line otherwise
func readPassword(out io.Writer, reader *bufio.Reader, in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(a *App) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored token",
		Long: `Log out. The server is asked to revoke the token; its answer is ignored
and the local token is cleared either way. --local skips the server call.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if local {
				err = a.session.LogoutLocal(cmd.Context())
			} else {
				err = a.session.LogoutServer(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green("Logged out."))
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Clear the local token without contacting the server")
	return cmd
}

func newStatusCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session token is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			authed := a.session.IsAuthenticated(cmd.Context())
			out := cmd.OutOrStdout()
			if a.format() == cli.FormatJSON {
				return cli.PrintJSON(out, map[string]any{
					"authenticated": authed,
					"base_url":      a.client.BaseURL(),
				})
			}
			fmt.Fprintf(out, "API:     %s\n", a.client.BaseURL())
			if authed {
				fmt.Fprintf(out, "Session: %s\n", green("logged in"))
			} else {
				fmt.Fprintf(out, "Session: %s\n", yellow("not logged in"))
			}
			return nil
		},
	}
}
