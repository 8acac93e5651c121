package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/binhbb2204/mangashelf/cli/config"
	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var username string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  `Register, login, logout and inspect the current MangaShelf session.`,
}

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(username) == "" {
			return fmt.Errorf("username is required (--username)")
		}
		client, _, err := newClient()
		if err != nil {
			return err
		}

		password, err := readPassword(cmd, "Password: ")
		if err != nil {
			return err
		}
		if isTerminal(cmd) {
			confirm, err := readPassword(cmd, "Confirm password: ")
			if err != nil {
				return err
			}
			if confirm != password {
				printError(cmd.ErrOrStderr(), "Passwords do not match")
				return fmt.Errorf("passwords do not match")
			}
		}

		var view models.UserView
		_, err = client.call(cmd.Context(), http.MethodPost, "/register",
			map[string]string{"username": username, "password": password}, &view)
		if err != nil {
			if isStatus(err, http.StatusConflict) {
				printError(cmd.ErrOrStderr(), "Registration failed: username taken")
				fmt.Fprintf(cmd.ErrOrStderr(), "Try: mangashelf auth login --username %s\n", username)
			}
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, view)
		}
		printSuccess(out, "Account created successfully!")
		printInfo(out, "User ID: "+view.ID)
		printInfo(out, "Username: "+view.Username)
		fmt.Fprintf(out, "\nLog in with: mangashelf auth login --username %s\n", view.Username)
		return nil
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to your account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(username) == "" {
			return fmt.Errorf("username is required (--username)")
		}
		client, _, err := newClient()
		if err != nil {
			return err
		}

		password, err := readPassword(cmd, "Password: ")
		if err != nil {
			return err
		}

		var view models.UserView
		resp, err := client.call(cmd.Context(), http.MethodPost, "/login",
			map[string]string{"username": username, "password": password}, &view)
		if err != nil {
			if isStatus(err, http.StatusUnauthorized) {
				printError(cmd.ErrOrStderr(), "Login failed: invalid username or password")
			}
			return err
		}

		session := sessionFrom(resp)
		if session == "" {
			return fmt.Errorf("server did not return a session")
		}
		if err := config.UpdateSession(view.Username, session); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, view)
		}
		printSuccess(out, "Logged in as "+view.Username)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout and forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		if cfg.User.Session == "" {
			printInfo(cmd.OutOrStdout(), "Not logged in")
			return nil
		}

		_, err = client.call(cmd.Context(), http.MethodPost, "/logout", nil, nil)
		if clearErr := config.ClearSession(); clearErr != nil {
			return fmt.Errorf("failed to clear session: %w", clearErr)
		}
		if err != nil && !isStatus(err, http.StatusUnauthorized) {
			return err
		}

		printSuccess(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		var view models.UserView
		if _, err := client.call(cmd.Context(), http.MethodGet, "/userinfo", nil, &view); err != nil {
			if isStatus(err, http.StatusUnauthorized) {
				printError(cmd.ErrOrStderr(), "Not logged in")
				fmt.Fprintln(cmd.ErrOrStderr(), "Try: mangashelf auth login --username <name>")
			}
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, view)
		}
		printInfo(out, "User ID: "+view.ID)
		printInfo(out, "Username: "+view.Username)
		printInfo(out, "Created: "+view.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

var authPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change your password",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		current, err := readPassword(cmd, "Current password: ")
		if err != nil {
			return err
		}
		next, err := readPassword(cmd, "New password: ")
		if err != nil {
			return err
		}

		body := map[string]string{"currentPassword": current, "newPassword": next}
		if _, err := client.call(cmd.Context(), http.MethodPost, "/password", body, nil); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Password changed")
		return nil
	},
}

func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readPassword reads without echo from a terminal, or one line otherwise.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	if isTerminal(cmd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		f := cmd.InOrStdin().(*os.File)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := stdinReader(cmd).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var bufferedStdin = map[io.Reader]*bufio.Reader{}

// stdinReader keeps one buffered reader per input so that consecutive
// prompts do not lose buffered bytes.
func stdinReader(cmd *cobra.Command) *bufio.Reader {
	in := cmd.InOrStdin()
	if r, ok := bufferedStdin[in]; ok {
		return r
	}
	r := bufio.NewReader(in)
	bufferedStdin[in] = r
	return r
}

func init() {
	for _, c := range []*cobra.Command{authRegisterCmd, authLoginCmd} {
		c.Flags().StringVarP(&username, "username", "u", "", "account username")
	}

	authCmd.AddCommand(authRegisterCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authWhoamiCmd)
	authCmd.AddCommand(authPasswdCmd)
}
