package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"respstream/internal/adapter/journal"
	"respstream/internal/adapter/llm"
	"respstream/internal/adapter/render"
	"respstream/internal/usecase"
)

type decodeOptions struct {
	asJSON        bool
	record        bool
	unknownEvents string
	summary       bool
}

func newDecodeCmd(g *globalFlags) *cobra.Command {
	o := &decodeOptions{}
	cmd := &cobra.Command{
		Use:   "decode [file|-]",
		Short: "Decode an SSE capture and print its events",
		Long: `Decode reads a server-sent event capture of a Responses API stream and
prints one line per decoded event or per-frame error. With no file, or with
"-", the capture is read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, g, o, args)
		},
	}
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "Print JSON lines instead of text")
	cmd.Flags().BoolVar(&o.record, "journal", false, "Record the frames in the journal")
	cmd.Flags().StringVar(&o.unknownEvents, "unknown-events", "", "Override stream.unknown_events (ignore, report)")
	cmd.Flags().BoolVar(&o.summary, "summary", false, "Print the collected result at the end")
	return cmd
}

func runDecode(cmd *cobra.Command, g *globalFlags, o *decodeOptions, args []string) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()

	in, label, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer in.Close()

	policyName := a.cfg.Stream.UnknownEvents
	if o.unknownEvents != "" {
		policyName = o.unknownEvents
	}
	policy, err := llm.ParseUnknownEventPolicy(policyName)
	if err != nil {
		return err
	}

	opts := []llm.InterpreterOption{
		llm.WithLogger(a.logger),
		llm.WithUnknownEventPolicy(policy),
	}

	sessionID := ""
	if o.record || a.cfg.Journal.Enabled {
		j, err := a.openJournal()
		if err != nil {
			return err
		}
		rec, err := journal.NewRecorder(ctx, j, label, a.logger)
		if err != nil {
			return err
		}
		sessionID = rec.SessionID()
		opts = append(opts, llm.WithFrameHook(rec.Hook()))
		defer func() {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (%d frames)\n", render.TextMuted.Render("journal session"), sessionID, rec.Recorded())
		}()
	}

	collector := usecase.NewCollector()
	relay := usecase.NewRelay(ctx, a.bus, sessionID, a.logger)
	printer := render.NewPrinter(cmd.OutOrStdout(), o.asJSON)

	interp := llm.NewResponseEventsInterpreter(opts...)
	interp.SetCallbacks(usecase.Callbacks(printer, collector, relay))

	relay.Started()
	size := a.cfg.Stream.ReadChunkSize
	if size <= 0 {
		size = 4096
	}
	chunk := make([]byte, size)
	for !interp.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := in.Read(chunk)
		if n > 0 {
			interp.ProcessData(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", label, err)
		}
	}
	relay.Done()

	if n := interp.Buffered(); n > 0 && !interp.Done() {
		a.logger.Warn("capture ended inside a frame", "buffered_bytes", n)
	}
	stats := interp.Stats()
	a.logger.Info("decode finished",
		"frames", stats.Frames, "events", stats.Events, "errors", stats.Errors, "ignored", stats.Ignored)

	if o.summary {
		return printSummary(cmd.OutOrStdout(), collector.Result(), o.asJSON)
	}
	return nil
}

// openInput returns the capture reader and a label naming it.
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), "stdin", nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(args[0]), nil
}
