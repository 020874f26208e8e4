package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/percolationlabs/p8node/cmd"
)

func main() {
	app := &cli.Command{
		Name:  "p8node",
		Usage: "P8FS device pairing and storage signing client",
		Commands: []*cli.Command{
			cmd.PairCommand(),
			cmd.ApproveCommand(),
			cmd.ExchangeCommand(),
			cmd.KeygenCommand(),
			cmd.PresignCommand(),
			cmd.ServeCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
