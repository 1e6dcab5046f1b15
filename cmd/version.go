package main

import (
	"os"

	omnibridge "github.com/omnibridge/omnibridge-service"
	"github.com/urfave/cli/v2"
)

func versionCmd(*cli.Context) error {
	omnibridge.PrintVersion(os.Stdout)
	return nil
}
