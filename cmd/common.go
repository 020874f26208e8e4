package cmd

import (
	"github.com/urfave/cli/v3"

	"github.com/percolationlabs/p8node/config"
	"github.com/percolationlabs/p8node/keystore"
	"github.com/percolationlabs/p8node/sigv4"
)

// keyringService is the OS keyring service name used when --keyring is set.
const keyringService = "p8node"

// configFlags are shared by every command.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a YAML config file (env vars override it)",
		},
		&cli.BoolFlag{
			Name:  "keyring",
			Usage: "Store key material in the OS keyring instead of a file",
		},
	}
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	return config.Load(cmd.String("config"))
}

func openStorage(cmd *cli.Command, cfg config.Config) keystore.Storage {
	if cmd.Bool("keyring") || cfg.UseKeyring {
		return keystore.NewKeyringStorage(keyringService)
	}
	return keystore.NewFileStorage(cfg.StoragePath)
}

func newSigner(cfg config.Config) *sigv4.Signer {
	return &sigv4.Signer{
		Endpoint: cfg.S3Endpoint,
		Region:   cfg.S3Region,
		Credentials: sigv4.Credentials{
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		},
	}
}
