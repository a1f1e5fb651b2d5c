package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
)

// Key file names written by keygen --out.
const (
	PrivateKeyFile = "loggy_private.pem"
	PublicKeyFile  = "loggy_public.pem"
)

func newKeygenCmd(_ *globals) *cobra.Command {
	var (
		bits int
		out  string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA key pair for payload encryption",
		Long: `Generate an RSA key pair. The public key goes to the SDK
(LOGGY_PUBLIC_KEY_FILE), the private key to the collector
(LOGGY_COLLECTOR_PRIVATE_KEY_FILE). Without --out both are printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			privPEM, pubPEM, err := transport.GenerateKeyPair(bits)
			if err != nil {
				return err
			}

			if out == "" {
				w := cmd.OutOrStdout()
				if _, err := w.Write(privPEM); err != nil {
					return err
				}
				_, err = w.Write(pubPEM)
				return err
			}

			if err := os.MkdirAll(out, 0o700); err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			privPath := filepath.Join(out, PrivateKeyFile)
			pubPath := filepath.Join(out, PublicKeyFile)
			if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}
			cmd.Printf("Wrote %s and %s\n", privPath, pubPath)
			return nil
		},
	}

	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size")
	cmd.Flags().StringVar(&out, "out", "", "Directory to write the key files to")
	return cmd
}
