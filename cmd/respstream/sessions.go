package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"respstream/internal/adapter/render"
	"respstream/internal/domain"
	"respstream/internal/usecase"
)

func newSessionsCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
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
			sessions, err := j.Sessions(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sessions)
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

var (
	idCol    = lipgloss.NewStyle().Width(28)
	timeCol  = lipgloss.NewStyle().Width(22)
	countCol = lipgloss.NewStyle().Width(8).Align(lipgloss.Right).MarginRight(2)
)

func printSessions(w io.Writer, sessions []domain.JournalSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, render.TextMuted.Render("no sessions recorded"))
		return
	}
	fmt.Fprintln(w, render.Bold.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		idCol.Render("ID"), timeCol.Render("CREATED"), countCol.Render("FRAMES"), "LABEL")))
	for _, s := range sessions {
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top,
			idCol.Render(s.ID),
			timeCol.Render(s.CreatedAt.Local().Format(time.DateTime)),
			countCol.Render(fmt.Sprint(s.Frames)),
			s.Label,
		))
	}
}

func printSummary(w io.Writer, res usecase.StreamResult, asJSON bool) error {
	if asJSON {
		return writeJSON(w, map[string]any{"summary": res})
	}
	fmt.Fprintln(w, render.Bold.Render("summary"))
	fmt.Fprintf(w, "  response  %s\n", res.ResponseID)
	fmt.Fprintf(w, "  status    %s\n", res.Status)
	if res.Incomplete != nil {
		fmt.Fprintf(w, "  reason    %s\n", res.Incomplete.Reason)
	}
	if res.Usage != nil {
		fmt.Fprintf(w, "  tokens    in=%d out=%d total=%d\n", res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.TotalTokens)
	}
	fmt.Fprintf(w, "  events    %d\n", res.Events)
	fmt.Fprintf(w, "  errors    %d\n", res.Errors)
	if res.Text != "" {
		fmt.Fprintf(w, "  text      %q\n", res.Text)
	}
	for _, fc := range res.FunctionCalls {
		fmt.Fprintf(w, "  call      %s %s\n", fc.ItemID, fc.Arguments)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
