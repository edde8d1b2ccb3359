package main

import (
	"fmt"
	"strings"

	"github.com/NordCoder/Renewly/internal/vapid"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage VAPID keys",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new VAPID key pair",
	Long: `Generate a P-256 VAPID key pair and print it as environment lines.

Examples:
  # raw base64url keys
  pushctl keys generate

  # PKCS8 / SPKI PEM documents
  pushctl keys generate --pem`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asPEM, _ := cmd.Flags().GetBool("pem")

		keys, err := vapid.Generate()
		if err != nil {
			return fmt.Errorf("generate keys: %w", err)
		}
		out := cmd.OutOrStdout()

		if !asPEM {
			fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\n", keys.PublicKey())
			fmt.Fprintf(out, "VAPID_PRIVATE_KEY=%s\n", keys.PrivateScalar())
			return nil
		}

		priv, pub, err := keys.PEM()
		if err != nil {
			return fmt.Errorf("encode pem: %w", err)
		}
		fmt.Fprintf(out, "VAPID_PUBLIC_KEY=\"%s\"\n", oneLine(pub))
		fmt.Fprintf(out, "VAPID_PRIVATE_KEY=\"%s\"\n", oneLine(priv))
		return nil
	},
}

var keysInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Validate the configured VAPID keys",
	Long: `Resolve the configured VAPID keys exactly as the dispatcher does at
startup and print the browser-facing public key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		public, _ := cmd.Flags().GetString("public")
		private, _ := cmd.Flags().GetString("private")

		if private == "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			public, private = cfg.VAPID.PublicKey, cfg.VAPID.PrivateKey
		}

		keys, err := vapid.Load(public, private)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "private key: %s\n", format(private))
		if public == "" {
			fmt.Fprintln(out, "public key:  derived from private key")
		} else {
			fmt.Fprintf(out, "public key:  %s\n", format(public))
		}
		fmt.Fprintf(out, "applicationServerKey: %s\n", keys.PublicKey())
		return nil
	},
}

func init() {
	keysGenerateCmd.Flags().Bool("pem", false, "print PEM documents instead of raw base64url")
	keysInspectCmd.Flags().String("public", "", "public key (overrides config)")
	keysInspectCmd.Flags().String("private", "", "private key (overrides config)")

	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysInspectCmd)
}

// oneLine escapes newlines so a PEM document fits in a .env value.
func oneLine(pem string) string {
	return strings.ReplaceAll(strings.TrimSpace(pem), "\n", `\n`)
}

func format(s string) string {
	m, err := vapid.ParseMaterial(s)
	if err != nil {
		return "invalid"
	}
	switch m.(type) {
	case vapid.PEM:
		return "PEM"
	default:
		return "raw base64url"
	}
}
