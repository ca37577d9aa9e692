// mgnregs-cli queries the monthly MGNREGA endpoint logic from a terminal
// and inspects the query log.
//
// Usage:
//
//	mgnregs-cli query --district Kabirdham --month 02 --year 2024
//	mgnregs-cli normalize "kabirdham" "Gaurela-Pendra"
//	mgnregs-cli history --limit 20
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "mgnregs-cli",
		Usage:   "MGNREGA Chhattisgarh monthly data from data.gov.in",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"MGNREGS_CLI_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			queryCommand(),
			normalizeCommand(),
			historyCommand(),
		},
	}
}
