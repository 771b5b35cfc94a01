package main

import (
	"context"
	goflag "flag"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/Notation/gscanner/internal/cli"
)

// OnlineLookup 编译时通过 -X main.OnlineLookup=false 关闭在线签名查询
var OnlineLookup = "true"

var args cli.Args

var rootCmd = &cobra.Command{
	Use:   "gscanner [flags] [SOLIDITY_FILE...]",
	Short: "gscanner, security analysis of Ethereum smart contracts",
	Long:  "",
	Args:  cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, positional []string) {
		args.SolidityFiles = positional
		os.Exit(cli.Run(context.Background(), &args, collaborators(cmd)))
	},
}

func capabilities() cli.Capabilities {
	return cli.Capabilities{OnlineSignatureLookup: OnlineLookup != "false"}
}

func collaborators(cmd *cobra.Command) cli.Collaborators {
	c := cli.DefaultCollaborators(version(), capabilities())
	c.Usage = func(w io.Writer) {
		cmd.SetOut(w)
		_ = cmd.Usage()
	}
	c.Epic = func(ctx context.Context) error {
		return runEpic(ctx, os.Args[1:], os.Stdout)
	}
	return c
}

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	args.BindFlags(rootCmd.Flags())
}

func main() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)

	rootCmd.AddCommand(versionCommand)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
