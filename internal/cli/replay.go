package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
	"github.com/roach88/qflow/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Template string // template file overriding the catalog lookup
	Today    string // YYYY-MM-DD; empty means the current date
}

// SessionReplay is the replay outcome for one stored session.
type SessionReplay struct {
	SessionID  string `json:"session_id"`
	TemplateID string `json:"template_id"`
	Answers    int    `json:"answers"`
	Version    int64  `json:"version"`
	Completion int    `json:"completion"`
	Complete   bool   `json:"complete"`
	Diverged   bool   `json:"diverged"`
	Error      string `json:"error,omitempty"`
}

func (r SessionReplay) ok() bool {
	return r.Error == "" && !r.Diverged
}

// ReplaySummary holds the overall replay result.
type ReplaySummary struct {
	Sessions   []SessionReplay `json:"sessions"`
	Total      int             `json:"total"`
	Consistent bool            `json:"consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [session-id]",
		Short: "Rebuild stored sessions from their answer logs",
		Long: `Rebuild sessions by re-running their logged answers and check the result.

Each session is replayed against its template (from the catalog, or the
file given with --template). A session fails when its template changed
since it was recorded, or when the rebuilt completion state differs from
the stored one, which happens when date rules are evaluated on another day.

Exit codes:
  0 - Every session replayed consistently
  1 - One or more sessions failed to replay or diverged
  2 - Command error (database not found, etc.)

Examples:
  qflow replay --db ./qflow.db
  qflow replay --db ./qflow.db 01912f7e-...
  qflow replay --db ./qflow.db --template ./evlilik.yaml --today 2024-03-01`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runReplay(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Template, "template", "", "template file to replay against")
	cmd.Flags().StringVar(&opts.Today, "today", "", "evaluate date rules as of this day (YYYY-MM-DD)")

	return cmd
}

func runReplay(opts *ReplayOptions, sessionID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	sessionOpts := []engine.SessionOption{engine.WithLogger(slog.New(slog.DiscardHandler))}
	if opts.Today != "" {
		d, err := ir.ParseDate(opts.Today)
		if err != nil {
			return formatter.fail(ErrCodeBadInput, fmt.Sprintf("--today: %v", err), nil)
		}
		fixed := d.Time().Add(9 * time.Hour)
		sessionOpts = append(sessionOpts, engine.WithNow(func() time.Time { return fixed }))
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.fail(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ErrCodeStore, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer st.Close()

	var sessions []store.SessionRecord
	if sessionID != "" {
		rec, err := st.ReadSession(ctx, sessionID)
		if store.IsNotFound(err) {
			return formatter.fail(ErrCodeNotFound, fmt.Sprintf("session not found: %s", sessionID), nil)
		}
		if err != nil {
			return formatter.fail(ErrCodeStore, err.Error(), nil)
		}
		sessions = []store.SessionRecord{rec}
	} else {
		sessions, err = st.ListSessions(ctx, "")
		if err != nil {
			return formatter.fail(ErrCodeStore, err.Error(), nil)
		}
	}

	templates := newTemplateCache(opts.Template)
	summary := ReplaySummary{
		Sessions:   make([]SessionReplay, 0, len(sessions)),
		Total:      len(sessions),
		Consistent: true,
	}
	for _, rec := range sessions {
		formatter.VerboseLog("Replaying %s (%s)", rec.ID, rec.TemplateID)
		r := replaySession(ctx, st, templates, rec, sessionOpts)
		summary.Sessions = append(summary.Sessions, r)
		if !r.ok() {
			summary.Consistent = false
		}
	}

	exitErr := NewExitError(ExitFailure, "replay verification failed")

	if formatter.isJSON() {
		if !summary.Consistent {
			if err := formatter.Failure("E_REPLAY", exitErr.Message, summary); err != nil {
				return err
			}
			return exitErr
		}
		return formatter.Success(summary)
	}

	printReplaySummary(formatter.Writer, summary)
	if !summary.Consistent {
		return exitErr
	}
	return nil
}

func replaySession(ctx context.Context, st *store.Store, templates *templateCache, rec store.SessionRecord, opts []engine.SessionOption) SessionReplay {
	r := SessionReplay{SessionID: rec.ID, TemplateID: rec.TemplateID, Version: rec.Version}

	tpl, err := templates.get(rec.TemplateID)
	if err != nil {
		r.Error = err.Error()
		return r
	}

	res, err := st.Replay(ctx, tpl, rec.ID, opts...)
	if err != nil {
		var mismatch *store.TemplateMismatchError
		if errors.As(err, &mismatch) {
			r.Error = "template changed since the session was recorded"
		} else {
			r.Error = err.Error()
		}
		return r
	}

	r.Answers = res.Answers
	r.Version = res.Snapshot.Version
	r.Completion = res.Snapshot.CompletionPercentage
	r.Complete = res.Snapshot.IsComplete
	r.Diverged = res.Diverged
	return r
}

// templateCache resolves each template id once. A file override serves
// every session.
type templateCache struct {
	override string
	loaded   map[string]*ir.Template
}

func newTemplateCache(override string) *templateCache {
	return &templateCache{override: override, loaded: make(map[string]*ir.Template)}
}

func (c *templateCache) get(id string) (*ir.Template, error) {
	ref := id
	if c.override != "" {
		ref = c.override
	}
	if tpl, ok := c.loaded[ref]; ok {
		return tpl, nil
	}
	tpl, loadErr := LoadTemplate(ref)
	if loadErr != nil {
		return nil, loadErr
	}
	c.loaded[ref] = tpl
	return tpl, nil
}

func printReplaySummary(w io.Writer, summary ReplaySummary) {
	if summary.Total == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return
	}

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n\n", summary.Total)
	for _, s := range summary.Sessions {
		mark := "✓"
		if !s.ok() {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", mark, s.SessionID, s.TemplateID)
		switch {
		case s.Error != "":
			fmt.Fprintf(w, "  Error: %s\n", s.Error)
		default:
			fmt.Fprintf(w, "  %d answer(s), version %d, %d%%", s.Answers, s.Version, s.Completion)
			if s.Complete {
				fmt.Fprint(w, ", complete")
			}
			fmt.Fprintln(w)
			if s.Diverged {
				fmt.Fprintln(w, "  Warning: completion state differs from the stored session")
			}
		}
	}
	fmt.Fprintln(w)

	if summary.Consistent {
		fmt.Fprintln(w, "✓ All sessions replayed consistently")
		return
	}
	fmt.Fprintln(w, "✗ Replay verification failed")
}
