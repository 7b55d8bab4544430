package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Travis-Britz/ddns6"
)

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the services listed on the local homepage",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the configured services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := newController(nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ctrl.Snapshot().Settings.Homepage.Services)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a service",
		Long: `Add lists a local port on the homepage with a share link built from the pushed domain,
or this host's address when no domain is set.
--preset picks the link scheme: SMB, HTTP, HTTPS, FTP, SSH or RDP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			svc := ddns.Service{ID: uuid.NewString()}
			svc.Name, _ = flags.GetString("name")
			svc.Port, _ = flags.GetUint16("port")
			svc.PresetType, _ = flags.GetString("preset")
			svc.Icon, _ = flags.GetString("icon")
			svc.Description, _ = flags.GetString("description")
			svc.Name = strings.TrimSpace(svc.Name)
			svc.PresetType = strings.ToUpper(strings.TrimSpace(svc.PresetType))
			if svc.Name == "" {
				return errors.New("--name is required")
			}
			if svc.Port == 0 {
				return errors.New("--port is required")
			}

			ctrl, err := newController(nil)
			if err != nil {
				return err
			}
			s := ctrl.Snapshot().Settings
			s.Homepage.Services = append(s.Homepage.Services, svc)
			if _, err := ctrl.SaveSettings(s); err != nil {
				return err
			}
			logger.Debug("service added", zap.String("id", svc.ID), zap.String("name", svc.Name))
			fmt.Fprintln(cmd.OutOrStdout(), svc.ID)
			return nil
		},
	}
	addCmd.Flags().String("name", "", "Display name")
	addCmd.Flags().Uint16("port", 0, "Local TCP port")
	addCmd.Flags().String("preset", "", "Share link scheme: SMB, HTTP, HTTPS, FTP, SSH or RDP")
	addCmd.Flags().String("icon", "", "Icon name shown by homepage clients")
	addCmd.Flags().String("description", "", "Short description")

	removeCmd := &cobra.Command{
		Use:   "remove <id or name>",
		Short: "Remove a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController(nil)
			if err != nil {
				return err
			}
			s := ctrl.Snapshot().Settings
			n := len(s.Homepage.Services)
			s.Homepage.Services = slices.DeleteFunc(s.Homepage.Services, func(svc ddns.Service) bool {
				return svc.ID == args[0] || strings.EqualFold(svc.Name, args[0])
			})
			if len(s.Homepage.Services) == n {
				return fmt.Errorf("no service matches %q", args[0])
			}
			_, err = ctrl.SaveSettings(s)
			return err
		},
	}

	cmd.AddCommand(listCmd, addCmd, removeCmd)
	return cmd
}
