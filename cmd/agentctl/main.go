// agentctl is the command line client for an agent marketplace node.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/urfave/cli.v1"

	"github.com/fortiblox/x1-agentmarket/pkg/client"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

var (
	urlFlag = cli.StringFlag{
		Name:   "url, u",
		Usage:  "JSON-RPC endpoint of the node",
		EnvVar: "AGENTMARKET_URL",
		Value:  client.DefaultEndpoint,
	}
	keypairFlag = cli.StringFlag{
		Name:   "keypair, k",
		Usage:  "Key file used to sign and pay",
		EnvVar: "AGENTMARKET_KEYPAIR",
		Value:  defaultKeypairPath(),
	}
	programIDFlag = cli.StringFlag{
		Name:   "program-id",
		Usage:  "Marketplace program address (default: built-in id)",
		EnvVar: "AGENTMARKET_PROGRAM_ID",
	}
	priorityFeeFlag = cli.Uint64Flag{
		Name:   "priority-fee",
		Usage:  "Priority fee in micro-lamports per compute unit",
		EnvVar: "AGENTMARKET_PRIORITY_FEE",
	}
	computeUnitLimitFlag = cli.UintFlag{
		Name:  "compute-unit-limit",
		Usage: "Compute units requested per transaction (default: node limit)",
	}
	jsonFlag = cli.BoolFlag{
		Name:  "json",
		Usage: "Print machine readable JSON",
	}
)

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".agentmarket", "id.json")
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "agentctl"
	app.Usage = "register, discover and pay AI agents on an agent marketplace node"
	app.Version = fmt.Sprintf("%s (%s)", Version, GitCommit)
	app.Flags = []cli.Flag{urlFlag, keypairFlag, programIDFlag, priorityFeeFlag, computeUnitLimitFlag}
	app.Commands = []cli.Command{
		keygenCommand,
		addressCommand,
		airdropCommand,
		balanceCommand,
		registerCommand,
		invokeCommand,
		showCommand,
		listCommand,
		idlCommand,
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
