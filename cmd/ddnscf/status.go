package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Travis-Britz/ddns6"
)

type statusReport struct {
	ddns.Snapshot
	OutboundIPv6 string   `json:"outboundIpv6,omitempty"`
	OutboundIPv4 string   `json:"outboundIpv4,omitempty"`
	Published    []string `json:"published,omitempty"`
	PublishedErr string   `json:"publishedError,omitempty"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the chosen address, saved state and the currently published record",
		Long: `Status evaluates the host's addresses without pushing anything
and asks a public DNS resolver which AAAA records are currently published for the saved domain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := newController(nil)
			if err != nil {
				return err
			}
			snap := ctrl.Snapshot()

			resolver, err := newResolver()
			if err != nil {
				return err
			}
			if sh, ok := resolver.(interface{ SetHTTPClient(*http.Client) }); ok {
				sh.SetHTTPClient(httpClient())
			}
			if l := libraryLogger(); l != nil {
				if sl, ok := resolver.(interface{ SetLogger(*log.Logger) }); ok {
					sl.SetLogger(l)
				}
			}
			obs, err := resolver.Resolve(cmd.Context(), snap.Settings.SelectedInterface)
			if err != nil {
				return fmt.Errorf("error detecting addresses: %w", err)
			}
			snap.Interfaces = obs.Interfaces
			if obs.Addr.IsValid() {
				snap.CurrentIPv6 = obs.Addr.String()
			}

			report := statusReport{
				Snapshot:     snap,
				OutboundIPv6: addrString(ddns.OutboundIPv6()),
				OutboundIPv4: addrString(ddns.OutboundIPv4()),
			}
			if domain := strings.TrimSpace(snap.Settings.Cloudflare.Domain); domain != "" {
				server, _ := cmd.Flags().GetString("server")
				published, err := ddns.LookupPublished(cmd.Context(), domain, server)
				if err != nil {
					logger.Debug("published lookup failed", zap.Error(err))
					report.PublishedErr = err.Error()
				}
				for _, a := range published {
					report.Published = append(report.Published, a.String())
				}
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().String("server", ddns.DefaultLookupServer, "DNS server used to check the published record")
	return cmd
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
