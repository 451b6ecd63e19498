package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags are shared by the client commands.
type GlobalFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:           "jenky",
		Short:         "Keep repository processes running and watch them from a dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.APIUrl, "api-url", "http://127.0.0.1:8000", "jenky daemon URL")
	root.PersistentFlags().DurationVar(&gf.APITimeout, "api-timeout", 10*time.Second, "API request timeout")

	root.AddCommand(
		createServeCommand(),
		createReposCommand(gf),
		createActionCommand(gf, "kill", "Stop a process and keep it stopped"),
		createActionCommand(gf, "restart", "(Re)start a process and keep it running"),
		createTailCommand(gf),
		createLogsCommand(gf),
		createConfigCommand(),
	)
	return root
}
