package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/percolationlabs/p8node/pairing"
)

// ApproveCommand creates the approve command
func ApproveCommand() *cli.Command {
	return &cli.Command{
		Name:      "approve",
		Usage:     "Approve a pairing request by signing its user code",
		ArgsUsage: "<user-code>",
		Flags:     configFlags(),
		Action:    runApproveCommand,
	}
}

func runApproveCommand(ctx context.Context, cmd *cli.Command) error {
	userCode := cmd.Args().First()
	if userCode == "" {
		return fmt.Errorf("user code argument required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	signer := &pairing.ApprovalSigner{
		Client:  pairing.NewClient(cfg.AuthBaseURL, nil),
		Storage: openStorage(cmd, cfg),
	}

	resp, err := signer.Approve(ctx, userCode)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ Approval submitted for %s\n", userCode)
	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	return nil
}
