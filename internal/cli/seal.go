// internal/cli/seal.go

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sshHarness/internal/config"
	"sshHarness/internal/crypto"
	apperr "sshHarness/internal/error"
)

func newSealCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a password for use in config.yaml",
		Long: `Read a secret from the terminal and print it as an enc: value that can
replace a plain password or root_password in config.yaml. The master key
is taken from ` + config.MasterKeyEnv + `.`,
		Args: cobra.NoArgs,
		// Sealing runs without loading the config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			masterKey := os.Getenv(config.MasterKeyEnv)
			if masterKey == "" {
				return apperr.New(apperr.ConfigError, config.MasterKeyEnv+" is not set", nil)
			}

			secret, err := a.readPassword("Secret: ")
			if err != nil {
				return err
			}
			if secret == "" {
				return apperr.New(apperr.ValidationError, "secret cannot be empty", nil)
			}
			again, err := a.readPassword("Repeat secret: ")
			if err != nil {
				return err
			}
			if again != secret {
				return apperr.New(apperr.ValidationError, "secrets do not match", nil)
			}

			sealed, err := crypto.NewCipher(masterKey).Seal(secret)
			if err != nil {
				return apperr.New(apperr.CryptoError, "failed to seal secret", err)
			}
			fmt.Fprintln(a.out, sealed)
			return nil
		},
	}
}
