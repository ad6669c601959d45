package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"respstream/internal/adapter/journal"
	"respstream/internal/adapter/llm"
	"respstream/internal/adapter/render"
	"respstream/internal/domain"
	"respstream/internal/usecase"
)

type streamOptions struct {
	prompt          string
	provider        string
	model           string
	instructions    string
	maxOutputTokens int
	temperature     float64
	schemaPath      string
	asJSON          bool
	renderMarkdown  bool
	width           int
	record          bool
}

func newStreamCmd(g *globalFlags) *cobra.Command {
	o := &streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream [prompt]",
		Short: "Send a prompt and stream the response",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				o.prompt = args[0]
			}
			if strings.TrimSpace(o.prompt) == "" {
				return fmt.Errorf("%w: a prompt is required", domain.ErrInvalidInput)
			}
			return runStream(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.prompt, "prompt", "p", "", "Prompt text")
	f.StringVar(&o.provider, "provider", "", "Provider name (default: llm.default_provider)")
	f.StringVarP(&o.model, "model", "m", "", "Model override")
	f.StringVar(&o.instructions, "instructions", "", "System instructions")
	f.IntVar(&o.maxOutputTokens, "max-output-tokens", 0, "Output token limit")
	f.Float64Var(&o.temperature, "temperature", 0, "Sampling temperature")
	f.StringVar(&o.schemaPath, "schema", "", "JSON Schema file for structured output")
	f.BoolVar(&o.asJSON, "json", false, "Print JSON lines instead of live text")
	f.BoolVar(&o.renderMarkdown, "render", false, "Render the final text as markdown")
	f.IntVar(&o.width, "width", 80, "Word wrap width for --render")
	f.BoolVar(&o.record, "journal", false, "Record the frames in the journal")
	return cmd
}

func runStream(cmd *cobra.Command, g *globalFlags, o *streamOptions) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()

	req := domain.ResponseRequest{
		Model:           o.model,
		Instructions:    o.instructions,
		Messages:        []domain.Message{{Role: domain.RoleUser, Content: o.prompt}},
		MaxOutputTokens: o.maxOutputTokens,
		Temperature:     o.temperature,
	}

	var schema json.RawMessage
	if o.schemaPath != "" {
		data, err := os.ReadFile(o.schemaPath)
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("%w: schema %s is not valid JSON", domain.ErrInvalidInput, o.schemaPath)
		}
		schema = data
		req.TextFormat = &domain.TextFormat{
			Name:   strings.TrimSuffix(filepath.Base(o.schemaPath), filepath.Ext(o.schemaPath)),
			Schema: schema,
			Strict: true,
		}
	}

	var (
		providerOpts []llm.ProviderOption
		sessionID    string
		rec          *journal.Recorder
	)
	if o.record || a.cfg.Journal.Enabled {
		j, err := a.openJournal()
		if err != nil {
			return err
		}
		rec, err = journal.NewRecorder(ctx, j, "stream: "+truncate(o.prompt, 60), a.logger)
		if err != nil {
			return err
		}
		sessionID = rec.SessionID()
		providerOpts = append(providerOpts, llm.WithInterpreterOptions(llm.WithFrameHook(rec.Hook())))
	}

	reg, err := a.registry(providerOpts...)
	if err != nil {
		return err
	}
	name := o.provider
	if name == "" {
		name = a.cfg.LLM.DefaultProvider
	}
	streamer, err := reg.Get(name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	relay := usecase.NewRelay(ctx, a.bus, sessionID, a.logger)
	sinks := []usecase.Sink{relay}
	var live *render.LiveText
	switch {
	case o.asJSON:
		sinks = append(sinks, render.NewPrinter(out, true))
	case !o.renderMarkdown:
		live = render.NewLiveText(out, cmd.ErrOrStderr())
		sinks = append(sinks, live)
	}

	relay.Started()
	res, err := usecase.StreamResponse(ctx, streamer, req, sinks...)
	relay.Done()
	if live != nil {
		live.Finish()
	}
	if err != nil {
		reportFailure(cmd, a, name, err)
		return err
	}
	if rec != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (%d frames)\n", render.TextMuted.Render("journal session"), sessionID, rec.Recorded())
	}

	if o.renderMarkdown && !o.asJSON {
		io.WriteString(out, render.Markdown(res.Text, o.width))
	}

	if schema != nil {
		parsed, err := usecase.ValidateStructured(res.Text, schema)
		if err != nil {
			return err
		}
		pretty, _ := json.MarshalIndent(parsed, "", "  ")
		fmt.Fprintln(cmd.ErrOrStderr(), render.TextSuccess.Render("structured output matches schema"))
		if o.renderMarkdown {
			fmt.Fprintln(out, string(pretty))
		}
	}

	if res.Status == domain.ResponseStatusFailed {
		msg := "response failed"
		if res.Error != nil {
			msg = res.Error.Message
			reportFailure(cmd, a, name, &domain.APIError{Code: res.Error.Code, Message: res.Error.Message})
		}
		return fmt.Errorf("%w: %s", domain.ErrProviderError, msg)
	}
	return nil
}

// reportFailure logs how a failed stream was classified and tells the user
// when retrying is likely to help.
func reportFailure(cmd *cobra.Command, a *app, provider string, err error) {
	c := usecase.NewErrorClassifier().Classify(err)
	a.logger.Warn("stream failed",
		"provider", provider,
		"category", c.Category.String(),
		"status", c.StatusCode,
		"api_code", c.APICode,
		"error", err,
	)
	if c.Category == usecase.ErrorCategoryRetryable {
		fmt.Fprintln(cmd.ErrOrStderr(), render.TextWarning.Render("the provider reported a transient failure; retrying may succeed"))
	}
}

// truncate shortens a string to maxLen bytes on a clean UTF-8 boundary,
// appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	end := 0
	for i := range s {
		if i > maxLen {
			break
		}
		end = i
	}
	return s[:end] + "..."
}
