package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔═╗ ╦ ╦ ╦ ╦  ╦ ╔═╗ ╦═╗
  ║═╬╗║ ║ ║ ╚╗╔╝ ║╣  ╠╦╝
  ╚═╝╚╚═╝ ╩  ╚╝  ╚═╝ ╩╚═
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "quiver",
		Short: "Fine-grained reactive state for Go",
		Long: `Quiver is a dependency-tracking reactivity runtime for Go.

State lives in reactive maps, lists, and cells; effects, computed
values, and watchers re-run automatically when the state they read
changes. This CLI ships the supporting tools:

  • bench    micro-benchmarks of the reactive core
  • inspect  a demo app serving the live dependency-graph inspector`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		benchCmd(),
		inspectCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the Quiver ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}
