package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/percolationlabs/p8node/config"
	"github.com/percolationlabs/p8node/pairing"
	"github.com/percolationlabs/p8node/token"
)

// ExchangeCommand creates the exchange command
func ExchangeCommand() *cli.Command {
	return &cli.Command{
		Name:  "exchange",
		Usage: "Redeem an OAuth authorization code for tokens and store them",
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:     "code",
				Usage:    "Authorization code from the redirect",
				Required: true,
			},
		),
		Action: runExchangeCommand,
	}
}

func runExchangeCommand(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client := pairing.NewClient(cfg.AuthBaseURL, nil)
	resp, err := client.ExchangeCode(ctx, pairing.ExchangeRequest{
		ClientID:     config.ClientID,
		Code:         cmd.String("code"),
		CodeVerifier: config.CodeVerifier,
		Scope:        config.Scope,
	})
	if err != nil {
		return err
	}

	set := &token.Set{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
		TenantID:     resp.TenantID,
	}
	if resp.ExpiresIn > 0 {
		set.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if err := token.Save(openStorage(cmd, cfg), set); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Signed in; tokens stored\n")
	if set.TenantID != "" {
		fmt.Printf("tenant: %s\n", set.TenantID)
	}
	return nil
}
