package main

import (
	"errors"

	"fanlive/internal/models"
	"fanlive/internal/settings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (e *env) provider() *settings.Provider {
	return settings.NewProvider(e.db, settings.Defaults(e.cfg), 0)
}

func newSettingsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the admin settings",
	}
	cmd.AddCommand(newSettingsShowCmd(e), newSettingsSetCmd(e))
	return cmd
}

func newSettingsShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective admin settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.connect(); err != nil {
				return err
			}
			s, err := e.provider().Get(cmd.Context())
			if err != nil {
				return err
			}
			return printYAML(cmd, s)
		},
	}
}

func newSettingsSetCmd(e *env) *cobra.Command {
	var (
		maxReschedules int
		bufferMinutes  int
		minTip         int64
		maxTip         int64
		ttlSeconds     int
		exemptGroup    string
		restrictGroup  string
		appID          string
		appSecret      string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update one or more admin settings",
		Long: `Update admin settings. Only the flags given are changed.

Examples:
  livectl settings set --min-tip 5 --max-tip 500
  livectl settings set --ttl 900`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.connect(); err != nil {
				return err
			}
			p := e.provider()
			s, err := p.Get(cmd.Context())
			if err != nil {
				return err
			}
			// Keep RTC keys that only live in config out of the row.
			if s.RTCAppID == e.cfg.RTCAppID {
				s.RTCAppID = ""
			}
			if s.RTCAppSecret == e.cfg.RTCAppSecret {
				s.RTCAppSecret = ""
			}

			flags := cmd.Flags()
			if flags.Changed("max-reschedules") {
				s.MaxReschedules = maxReschedules
			}
			if flags.Changed("buffer-minutes") {
				s.RescheduleBufferMinutes = bufferMinutes
			}
			if flags.Changed("min-tip") {
				s.MinTipAmount = minTip
			}
			if flags.Changed("max-tip") {
				s.MaxTipAmount = maxTip
			}
			if flags.Changed("ttl") {
				s.CredentialTTLSeconds = ttlSeconds
			}
			if flags.Changed("exempt-group") {
				s.RescheduleExemptGroup = exemptGroup
			}
			if flags.Changed("restricted-group") {
				s.NotifyRestrictedGroup = restrictGroup
			}
			if flags.Changed("rtc-app-id") {
				s.RTCAppID = appID
			}
			if flags.Changed("rtc-app-secret") {
				s.RTCAppSecret = appSecret
			}
			if err := validateSettings(s); err != nil {
				return err
			}

			saved, err := p.Save(cmd.Context(), s)
			if err != nil {
				return err
			}
			return printYAML(cmd, saved)
		},
	}
	f := cmd.Flags()
	f.IntVar(&maxReschedules, "max-reschedules", 0, "reschedules allowed per live")
	f.IntVar(&bufferMinutes, "buffer-minutes", 0, "minutes before start after which a live can no longer be rescheduled")
	f.Int64Var(&minTip, "min-tip", 0, "smallest tip menu price in coins")
	f.Int64Var(&maxTip, "max-tip", 0, "largest tip menu price in coins")
	f.IntVar(&ttlSeconds, "ttl", 0, "credential lifetime in seconds")
	f.StringVar(&exemptGroup, "exempt-group", "", "group whose members ignore the reschedule limit")
	f.StringVar(&restrictGroup, "restricted-group", "", "group whose members never receive live notifications")
	f.StringVar(&appID, "rtc-app-id", "", "media provider app id")
	f.StringVar(&appSecret, "rtc-app-secret", "", "media provider app secret")
	return cmd
}

func validateSettings(s models.AdminSettings) error {
	switch {
	case s.MaxReschedules < 0:
		return errors.New("max-reschedules must not be negative")
	case s.RescheduleBufferMinutes < 0:
		return errors.New("buffer-minutes must not be negative")
	case s.MinTipAmount < 1:
		return errors.New("min-tip must be at least 1")
	case s.MaxTipAmount < s.MinTipAmount:
		return errors.New("max-tip must be at least min-tip")
	case s.CredentialTTLSeconds <= 0:
		return errors.New("ttl must be positive")
	}
	return nil
}

func printYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
