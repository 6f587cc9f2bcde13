package main

import (
	"fmt"
	"time"

	"fanlive/internal/repository"
	"fanlive/internal/rtc"
	"fanlive/internal/service"
	"fanlive/internal/settings"

	"github.com/spf13/cobra"
)

func newLivesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lives",
		Short: "Live session housekeeping",
	}

	var at string
	expire := &cobra.Command{
		Use:   "expire",
		Short: "Expire scheduled lives whose window has passed",
		Long: `Expire scheduled lives whose planned end plus the grace period has passed
and drop their pending reminders. The worker runs the same sweep every minute.

Examples:
  livectl lives expire
  livectl lives expire --at 2026-06-01T12:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.connect(); err != nil {
				return err
			}
			lives := service.NewLiveService(
				repository.NewStore(e.db),
				settings.Static(settings.Defaults(e.cfg)),
				rtc.NewIssuer(),
				nil, nil, nil, nil,
			)
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				lives.SetClock(func() time.Time { return ts })
			}
			n, err := lives.ExpireStale(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d lives\n", n)
			return nil
		},
	}
	expire.Flags().StringVar(&at, "at", "", "evaluate the sweep as of this RFC 3339 time")
	cmd.AddCommand(expire)
	return cmd
}
