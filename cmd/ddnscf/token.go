package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Travis-Britz/ddns6"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the Cloudflare API token",
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Prompt for an API token and store it",
		Long: `Set reads an API token from the terminal without echoing it
and stores it in the OS keyring, or in a new key file when --key-file is given.
The token needs Zone.DNS edit permission for the zone being updated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprint(cmd.ErrOrStderr(), "Enter Cloudflare API Token: ")
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("error reading from stdin: %w", err)
			}
			token := strings.TrimSpace(string(b))
			if token == "" {
				return errors.New("token cannot be empty")
			}

			if verify, _ := cmd.Flags().GetBool("verify"); verify {
				logger.Debug("verifying token...")
				if err := ddns.VerifyCloudflareToken(cmd.Context(), token); err != nil {
					return err
				}
				logger.Info("token verified successfully")
			}

			if path := viper.GetString("key-file"); path != "" {
				if err := ddns.WriteKeyFile(path, token); err != nil {
					return err
				}
				logger.Info("token written", zap.String("path", path))
				return nil
			}
			if err := ddns.Keyring().SetToken(token); err != nil {
				return err
			}
			logger.Info("token saved to keyring")
			return nil
		},
	}
	setCmd.Flags().Bool("verify", false, "Check the token with Cloudflare before storing it")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored API token",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if path := viper.GetString("key-file"); path != "" {
				if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("error removing key file: %w", err)
				}
				logger.Info("key file removed", zap.String("path", path))
				return nil
			}
			if err := ddns.Keyring().ClearToken(); err != nil {
				return err
			}
			logger.Info("token removed from keyring")
			return nil
		},
	}

	cmd.AddCommand(setCmd, clearCmd)
	return cmd
}
