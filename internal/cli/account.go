package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAccountCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Email verification and password reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "request-verification EMAIL",
			Short: "Mail a verification link to EMAIL",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.manager.Client().Auth().RequestEmailVerification(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a verification email has been sent.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "verify TOKEN",
			Short: "Confirm an email address with the token from the mail",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.manager.Client().Auth().VerifyEmail(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Email verified.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "forgot-password EMAIL",
			Short: "Mail a password reset link to EMAIL",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.manager.Client().Auth().RequestPasswordReset(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a reset email has been sent.")
				return nil
			},
		},
		newResetPasswordCommand(a),
	)
	return cmd
}

func newResetPasswordCommand(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "reset-password TOKEN",
		Short: "Set a new password with the token from the reset mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--password is required")
			}
			if err := a.manager.Client().Auth().ResetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password updated. Sign in again with the new password.")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password (required)")
	return cmd
}
