package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Number of runs to show (0 for all)" default:"20"`
	JSON  bool `name:"json" help:"Print runs as JSON"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	return ShowHistory(context.Background(), cfg, h.Limit, h.JSON, g.stdout())
}

// ShowHistory replays the run history and prints the newest limit runs.
func ShowHistory(ctx context.Context, cfg *config.Config, limit int, asJSON bool, out io.Writer) error {
	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	projection := eventstore.NewRunHistoryProjection(store, 0)
	if err := projection.Rebuild(ctx); err != nil {
		return err
	}
	runs := projection.List(limit)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tKEY\tSTATUS\tSTARTED\tDURATION\tCOMMIT\tDETAIL")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.RunID), r.Key, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond),
			shortID(r.Commit), detail(r))
	}
	return tw.Flush()
}

func shortID(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func detail(r eventstore.RunSummary) string {
	switch r.Status {
	case eventstore.RunStatusFailed:
		if r.FailedPhase != "" {
			return r.FailedPhase + ": " + r.Error
		}
		return r.Error
	case eventstore.RunStatusCanceled:
		return r.Error
	case eventstore.RunStatusSucceeded:
		return r.PublishStatus
	}
	return ""
}
