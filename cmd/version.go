package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	BuildBranch  string
	BuildVersion string
	BuildTime    string
	Builder      string
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "show build information",
	Long:  ``,
	Run: func(*cobra.Command, []string) {
		printVersion()
	},
}

// version -V 输出的版本号
func version() string {
	if BuildVersion == "" {
		return "dev"
	}
	return BuildVersion
}

func printVersion() {
	fmt.Printf("\033[36m%-16s\033[0m %s\n", "BuildBranch", BuildBranch)
	fmt.Printf("\033[36m%-16s\033[0m %s\n", "BuildVersion", version())
	fmt.Printf("\033[36m%-16s\033[0m %s\n", "BuildTime", BuildTime)
	fmt.Printf("\033[36m%-16s\033[0m %s\n", "Builder", Builder)
	fmt.Printf("\033[36m%-16s\033[0m %s\n", "OnlineLookup", OnlineLookup)
}
