package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jrsteele09/go-school-session/internal/utils"
	"github.com/jrsteele09/go-school-session/users"
)

const passwordEnvVar = "SCHOOL_PASSWORD"

func newLoginCommand(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password and store the session.

The password may be given in SCHOOL_PASSWORD instead of on the command line.

Examples:
  schoolctl login --email teacher@school.test --password Password1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnvVar)
			}
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				return fmt.Errorf("--password or %s is required", passwordEnvVar)
			}

			profile, err := a.manager.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s> (%s)\n", profile.Name, profile.Email, profile.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Long: `Forget the stored session. The backend is not contacted; the refresh
token simply stops being used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.manager.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

// whoami is the YAML view of the current session
type whoami struct {
	ID            int64      `yaml:"id"`
	Name          string     `yaml:"name"`
	Email         string     `yaml:"email"`
	Role          users.Role `yaml:"role"`
	EmailVerified bool       `yaml:"email_verified"`
	State         string     `yaml:"state"`
	TokenExpires  string     `yaml:"token_expires,omitempty"`
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd); err != nil {
				return err
			}

			profile := utils.Value(a.manager.User())
			out := whoami{
				ID:            profile.ID,
				Name:          profile.Name,
				Email:         profile.Email,
				Role:          profile.Role,
				EmailVerified: profile.EmailVerified,
				State:         a.manager.State().String(),
			}
			if creds, err := a.store.Get(cmd.Context()); err == nil && !creds.ExpiresAt().IsZero() {
				out.TokenExpires = creds.ExpiresAt().Local().Format("2006-01-02 15:04:05")
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(out)
		},
	}
}
