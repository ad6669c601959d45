package main

import (
	"errors"

	"github.com/spf13/cobra"

	"respstream/internal/adapter/journal"
	"respstream/internal/adapter/llm"
	"respstream/internal/adapter/render"
	"respstream/internal/usecase"
)

func newReplayCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON  bool
		summary bool
		raw     bool
	)
	cmd := &cobra.Command{
		Use:   "replay SESSION_ID",
		Short: "Replay a recorded session through the decoder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			a, err := newApp(ctx, g)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.close()) }()

			j, err := a.openJournal()
			if err != nil {
				return err
			}

			if raw {
				frames, err := j.Frames(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(journal.Encode(frames))
				return err
			}

			policy, err := llm.ParseUnknownEventPolicy(a.cfg.Stream.UnknownEvents)
			if err != nil {
				return err
			}
			collector := usecase.NewCollector()
			relay := usecase.NewRelay(ctx, a.bus, args[0], a.logger)
			interp := llm.NewResponseEventsInterpreter(llm.WithLogger(a.logger), llm.WithUnknownEventPolicy(policy))
			interp.SetCallbacks(usecase.Callbacks(render.NewPrinter(cmd.OutOrStdout(), asJSON), collector, relay))

			relay.Started()
			n, err := journal.ReplaySession(ctx, j, args[0], interp)
			if err != nil {
				return err
			}
			relay.Done()
			a.logger.Info("replay finished", "session_id", args[0], "frames", n)

			if summary {
				return printSummary(cmd.OutOrStdout(), collector.Result(), asJSON)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON lines instead of text")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print the collected result at the end")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the recorded event stream instead of decoding it")
	return cmd
}
