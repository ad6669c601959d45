package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"respstream/internal/adapter/render"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "respstream",
		Short: "Decode, record and replay Responses API event streams",
		Long: `respstream turns a Responses API server-sent event stream into typed events.

Commands:
  decode    Decode an SSE capture from a file or stdin
  stream    Send a prompt to a provider and stream the answer
  replay    Replay a recorded session through the decoder
  sessions  List recorded sessions
  encrypt   Encrypt a secret for the config file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default: ~/.respstream/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override logger.level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Shorthand for --log-level debug")

	root.AddCommand(
		newDecodeCmd(g),
		newStreamCmd(g),
		newReplayCmd(g),
		newSessionsCmd(g),
		newEncryptCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, render.TextError.Render("error:")+" "+err.Error())
		stop()
		os.Exit(1)
	}
}
