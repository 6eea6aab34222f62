package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-school-session/internal/utils"
	"github.com/jrsteele09/go-school-session/session"
)

func newKeepaliveCommand(a *app) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Keep the stored session fresh until interrupted",
		Long: `Restore the stored session and renew it ahead of every access token
expiry, printing each state change, until interrupted or the session ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			ended := make(chan struct{})
			unsubscribe := a.manager.Subscribe(func(snap session.Snapshot) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s session %s\n", time.Now().Format(time.TimeOnly), snap.State)
				if snap.State == session.Unauthenticated {
					select {
					case <-ended:
					default:
						close(ended)
					}
				}
			})
			defer unsubscribe()

			fmt.Fprintf(cmd.OutOrStdout(), "Keeping session for %s alive\n", utils.Value(a.manager.User()).Email)
			select {
			case <-ctx.Done():
				return nil
			case <-ended:
				return session.ErrSessionExpired
			}
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (default until interrupted)")
	return cmd
}
