package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"respstream/internal/domain"
	"respstream/internal/infra/config"
)

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt VALUE",
		Short: "Encrypt a secret for use as an enc: value in the config file",
		Long: `Encrypt prints VALUE encrypted with the passphrase in ` + config.ConfigKeyEnv + `.
Paste the output into the config file, e.g. as a provider api_key. The same
passphrase must be set when the config is loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv(config.ConfigKeyEnv)
			if key == "" {
				return fmt.Errorf("%w: %s is not set", domain.ErrInvalidInput, config.ConfigKeyEnv)
			}
			enc, err := config.EncryptValue(args[0], key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "enc:"+enc)
			return nil
		},
	}
}
