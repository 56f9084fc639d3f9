package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/openmined/assetsync/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCredentialsCmd())
}

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the secret key kept in the OS keyring",
	}
	cmd.AddCommand(newCredentialsSetCmd(), newCredentialsDeleteCmd())
	return cmd
}

func newCredentialsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the secret key for an access key, read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accessKey, err := credentialsAccessKey(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "secret key for %s: ", accessKey)
			secret, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && secret == "" {
				return fmt.Errorf("read secret: %w", err)
			}
			secret = strings.TrimSpace(secret)

			if err := config.SaveSecret(accessKey, secret); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "saved to keyring")
			return nil
		},
	}
	cmd.Flags().String("access-key", "", "access key id (default store.access_key from config)")
	return cmd
}

func newCredentialsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored secret key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accessKey, err := credentialsAccessKey(cmd)
			if err != nil {
				return err
			}
			if err := config.DeleteSecret(accessKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed from keyring")
			return nil
		},
	}
	cmd.Flags().String("access-key", "", "access key id (default store.access_key from config)")
	return cmd
}

func credentialsAccessKey(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Store.AccessKey == "" {
		return "", errors.New("no access key, pass --access-key or set store.access_key")
	}
	return cfg.Store.AccessKey, nil
}
