package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/percolationlabs/p8node/keystore"
)

// KeygenCommand creates the keygen command
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:   "keygen",
		Usage:  "Register this device: generate and store the Ed25519 signing key pair",
		Flags:  configFlags(),
		Action: runKeygenCommand,
	}
}

func runKeygenCommand(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	storage := openStorage(cmd, cfg)

	pair, err := keystore.GenerateSigningKeyPair(storage)
	if err != nil {
		if errors.Is(err, keystore.ErrSigningKeyExists) {
			return fmt.Errorf("a signing key pair is already registered; refusing to overwrite it")
		}
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ Ed25519 signing key pair generated\n")
	fmt.Printf("Public key: %s\n", pair.PublicKeyBase64)
	return nil
}
