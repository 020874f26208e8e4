package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

// PresignCommand creates the presign command
func PresignCommand() *cli.Command {
	expiresFlag := &cli.IntFlag{
		Name:  "expires",
		Usage: "URL lifetime in seconds",
		Value: 3600,
	}

	return &cli.Command{
		Name:  "presign",
		Usage: "Generate presigned object-storage URLs",
		Commands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "Presign a PUT for a new upload",
				ArgsUsage: "<bucket> <file-name>",
				Flags:     append(configFlags(), expiresFlag),
				Action:    runPresignPut,
			},
			{
				Name:      "get",
				Usage:     "Presign a GET for an existing object key",
				ArgsUsage: "<bucket> <key>",
				Flags:     append(configFlags(), expiresFlag),
				Action:    runPresignGet,
			},
		},
	}
}

func runPresignPut(_ context.Context, cmd *cli.Command) error {
	bucket, fileName := cmd.Args().Get(0), cmd.Args().Get(1)
	if bucket == "" || fileName == "" {
		return fmt.Errorf("bucket and file-name arguments required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	signer := newSigner(cfg)

	key := signer.GenerateUploadKey(fileName)
	obj, err := signer.PresignPut(bucket, key, time.Duration(cmd.Int("expires"))*time.Second)
	if err != nil {
		return err
	}

	fmt.Printf("key: %s\n", obj.Key)
	fmt.Printf("url: %s\n", obj.URL)
	return nil
}

func runPresignGet(_ context.Context, cmd *cli.Command) error {
	bucket, key := cmd.Args().Get(0), cmd.Args().Get(1)
	if bucket == "" || key == "" {
		return fmt.Errorf("bucket and key arguments required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	u, err := newSigner(cfg).PresignGet(bucket, key, time.Duration(cmd.Int("expires"))*time.Second)
	if err != nil {
		return err
	}

	fmt.Println(u)
	return nil
}
