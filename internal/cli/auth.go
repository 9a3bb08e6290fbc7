package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"timesheet/internal/app"
	"timesheet/internal/localstore"
)

var errNoOAuth = errors.New("OAuth is not configured: set OAUTH_CLIENT_ID, OAUTH_DEVICE_AUTH_URL and OAUTH_TOKEN_URL")

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with the OAuth device flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.User.ID != "" {
			return errors.New("TIMESHEET_USER_ID is set; unset it to sign in with OAuth")
		}
		_, oauth := app.NewAuth(cfg, logger)
		if oauth == nil {
			return errNoOAuth
		}
		u, err := oauth.Login(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", u.Email, u.UID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored OAuth token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		_, oauth := app.NewAuth(cfg, logger)
		if oauth == nil {
			return errNoOAuth
		}
		if err := oauth.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		provider, _ := app.NewAuth(cfg, logger)
		u, err := provider.CurrentUser(cmd.Context())
		if err != nil {
			return err
		}
		if u == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", u.Email, u.UID)
		return nil
	},
}

var (
	gateUser     string
	gatePassword string
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Unlock or lock this device behind basic auth",
}

var gateLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Unlock this device",
	Long: `Unlock this device with the basic-auth credentials.

The password is read from standard input when --password is not given.

Examples:
  timesheet gate login --user admin
  echo "$PASS" | timesheet gate login --user admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		pass := gatePassword
		if pass == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password: %w", err)
			}
			pass = strings.TrimRight(line, "\r\n")
		}
		if err := app.NewGate(cfg).Login(gateUser, pass); err != nil {
			if errors.Is(err, localstore.ErrBadCredentials) {
				return err
			}
			return fmt.Errorf("saving gate state: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Unlocked")
		return nil
	},
}

var gateLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Lock this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.NewGate(cfg).Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Locked")
		return nil
	},
}

var gateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether this device is unlocked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.BasicAuth.Enabled {
			fmt.Fprintln(cmd.OutOrStdout(), "Gate disabled")
			return nil
		}
		ok, err := app.NewGate(cfg).IsAuthenticated()
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Unlocked")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Locked")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, gateCmd)
	gateCmd.AddCommand(gateLoginCmd, gateLogoutCmd, gateStatusCmd)
	gateLoginCmd.Flags().StringVar(&gateUser, "user", "admin", "Basic-auth username")
	gateLoginCmd.Flags().StringVar(&gatePassword, "password", "", "Basic-auth password (default: read from stdin)")
}
