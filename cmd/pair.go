package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/percolationlabs/p8node/config"
	"github.com/percolationlabs/p8node/pairing"
)

// PairCommand creates the pair command
func PairCommand() *cli.Command {
	return &cli.Command{
		Name:  "pair",
		Usage: "Start a QR pairing session and wait for mobile approval",
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:  "qr-png",
				Usage: "Also write the QR code to this PNG file",
			},
		),
		Action: runPairCommand,
	}
}

func runPairCommand(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	controller := pairing.NewController(pairing.ControllerConfig{
		Client:        pairing.NewClient(cfg.AuthBaseURL, nil),
		Storage:       openStorage(cmd, cfg),
		ClientID:      config.ClientID,
		Scope:         config.Scope,
		RedirectURI:   cfg.RedirectURI,
		CodeChallenge: config.CodeChallenge,
		DeviceInfo: pairing.DeviceInfo{
			Name:  cfg.DeviceName,
			Model: cfg.DeviceModel,
		},
		Logger: logger,
	})
	defer controller.Stop()

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pairing: %w", err)
	}

	session := controller.Session()
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session payload: %w", err)
	}

	qr, err := qrcode.New(string(payload), qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to build QR code: %w", err)
	}
	fmt.Print(qr.ToSmallString(false))
	fmt.Printf("User code: %s\n", session.UserCode)
	fmt.Printf("Or open:   %s\n", session.VerificationURIComplete)
	fmt.Printf("Session expires in %d seconds\n\n", session.ExpiresIn)

	if path := cmd.String("qr-png"); path != "" {
		if err := qr.WriteFile(256, path); err != nil {
			return fmt.Errorf("failed to write QR PNG: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ QR code written to %s\n", path)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-controller.Updates():
			switch update.State {
			case pairing.StateApproved:
				fmt.Fprintf(os.Stderr, "\n=== PAIRING SUMMARY ===\n")
				fmt.Fprintf(os.Stderr, "✓ Device approved\n")
				fmt.Printf("Open this URL to finish signing in:\n%s\n", update.AuthorizeURL)
				fmt.Printf("Then run: p8node exchange --code <authorization-code>\n")
				return nil
			case pairing.StateExpired:
				return pairing.ErrSessionExpired
			case pairing.StateError:
				return update.Err
			}
		}
	}
}
