package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensoc/notebooklets/pkg/server"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	Long: `Issue a signed bearer token for a server running with auth enabled.
The signing secret is read from the config file.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "analyst", "subject claim of the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

func runToken(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfigOrDefaults(cfgFile)
	if err != nil {
		return err
	}

	if cfg.Server.Auth.SecretKey == "" {
		return fmt.Errorf("server.auth.secret_key is not configured")
	}

	token, err := server.IssueToken(cfg.Server.Auth.SecretKey, tokenSubject, tokenTTL)
	if err != nil {
		return err
	}

	fmt.Println(token)

	return nil
}
