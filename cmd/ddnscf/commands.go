package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Travis-Britz/ddns6"
)

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push the current address to Cloudflare now",
		Long: `Push detects the host's address and updates the AAAA record with it,
even when the address has not changed since the last push.
--address skips detection and publishes the given IPv6 address instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resolver ddns.Resolver
			if addr, _ := cmd.Flags().GetString("address"); addr != "" {
				r, err := ddns.FromString(addr)
				if err != nil {
					return err
				}
				resolver = r
			}
			ctrl, err := newController(resolver)
			if err != nil {
				return err
			}
			snap, err := ctrl.ManualPush(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), snap.Cache.LastSyncStatus.Message)
			return nil
		},
	}
	cmd.Flags().String("address", "", "Publish this IPv6 address instead of detecting one")
	return cmd
}

func newLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Find the AAAA record id for a domain and save it",
		Long: `Lookup asks Cloudflare for the AAAA record of --domain in --zone
and saves the zone, domain and record id to the settings file.
Either flag defaults to the saved setting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := newController(nil)
			if err != nil {
				return err
			}
			current := ctrl.Snapshot().Settings.Cloudflare
			zone, _ := cmd.Flags().GetString("zone")
			domain, _ := cmd.Flags().GetString("domain")
			if zone == "" {
				zone = current.ZoneID
			}
			if domain == "" {
				domain = current.Domain
			}
			snap, err := ctrl.LookupRecordID(cmd.Context(), zone, domain)
			if err != nil {
				return err
			}
			logger.Debug("record id saved", zap.String("zone", zone), zap.String("domain", domain))
			fmt.Fprintln(cmd.OutOrStdout(), snap.Settings.Cloudflare.RecordID)
			return nil
		},
	}
	cmd.Flags().String("zone", "", "Cloudflare zone id")
	cmd.Flags().String("domain", "", "Fully qualified record name, e.g. home.example.com")
	return cmd
}

func newConfigureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Change saved settings",
		Long: `Configure updates only the settings whose flags are given.
Changing the domain clears the saved record id.
With no flags the current settings are printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := newController(nil)
			if err != nil {
				return err
			}
			s := ctrl.Snapshot().Settings
			flags := cmd.Flags()
			changed := false
			for _, name := range []string{"zone", "domain", "record-id", "interface", "auto-push", "ttl", "web-port"} {
				changed = changed || flags.Changed(name)
			}
			if !changed {
				return printJSON(cmd.OutOrStdout(), s)
			}
			if flags.Changed("zone") {
				s.Cloudflare.ZoneID, _ = flags.GetString("zone")
			}
			if flags.Changed("domain") {
				s.Cloudflare.Domain, _ = flags.GetString("domain")
			}
			if flags.Changed("record-id") {
				s.Cloudflare.RecordID, _ = flags.GetString("record-id")
			}
			if flags.Changed("interface") {
				s.SelectedInterface, _ = flags.GetString("interface")
			}
			if flags.Changed("auto-push") {
				s.AutoPush, _ = flags.GetBool("auto-push")
			}
			if flags.Changed("ttl") {
				ttl, _ := flags.GetInt("ttl")
				if ttl < 0 || (ttl > 1 && ttl < 30) || ttl > 86400 {
					return fmt.Errorf("ttl must be 0 (automatic) or between 30 and 86400; got %d", ttl)
				}
				s.Cloudflare.TTL = ttl
			}
			if flags.Changed("web-port") {
				s.Homepage.WebPort, _ = flags.GetUint16("web-port")
			}
			s.Cloudflare.ZoneID = strings.TrimSpace(s.Cloudflare.ZoneID)
			s.Cloudflare.Domain = strings.TrimSpace(s.Cloudflare.Domain)
			s.SelectedInterface = strings.TrimSpace(s.SelectedInterface)

			snap, err := ctrl.SaveSettings(s)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap.Settings)
		},
	}
	cmd.Flags().String("zone", "", "Cloudflare zone id")
	cmd.Flags().String("domain", "", "Fully qualified record name, e.g. home.example.com")
	cmd.Flags().String("record-id", "", "AAAA record id; normally found with the lookup command")
	cmd.Flags().String("interface", "", "Only publish addresses from this interface (empty for all)")
	cmd.Flags().Bool("auto-push", true, "Push automatically when the address changes")
	cmd.Flags().Int("ttl", 0, "Record TTL in seconds (0 leaves it to Cloudflare)")
	cmd.Flags().Uint16("web-port", 0, "Port run serves the local homepage on when --listen is not given (0 disables it)")
	return cmd
}
