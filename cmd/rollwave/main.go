// Command rollwave runs deployments against a simulated cluster. It is a
// demo harness for the orchestration core: point it at a config file (or
// flags), watch the pipeline snapshots stream by, and inspect the final
// outcome.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rollwave",
		Short:         "Fleet module deployment orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a config file (yaml, json, or toml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(newDeployCmd())
	return root
}
