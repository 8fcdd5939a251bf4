package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nhle/notefeed/internal/app"
	"github.com/nhle/notefeed/internal/credential"
	"github.com/nhle/notefeed/internal/feed"
	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/moderation"
	appsync "github.com/nhle/notefeed/internal/sync"
	"github.com/nhle/notefeed/internal/theme"
	"github.com/nhle/notefeed/internal/ui/notetext"
)

func newTUICommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and moderate notifications interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), f)
		},
	}
}

func runTUI(ctx context.Context, f *flags) error {
	r, err := setup(f, false)
	if err != nil {
		return err
	}
	defer r.Close()

	r.restore(ctx)

	m := app.New(app.Deps{
		Pipeline:        r.pipeline,
		Poller:          r.poller,
		API:             r.api,
		Stats:           r.stats,
		Logger:          r.log,
		ConfirmInterval: r.cfg.ConfirmInterval(),
		ConfirmAttempts: r.cfg.Moderation.ConfirmAttempts,
	})

	r.stats.Bump("notes-menu-impressions", "terminal")
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	r.poller.Stop()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}

func newSyncCommand(f *flags) *cobra.Command {
	var bodies bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the latest notifications into the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup(f, true)
			if err != nil {
				return err
			}
			defer r.Close()

			r.restore(cmd.Context())
			if cmd.Flags().Changed("bodies") {
				r.poller = appsync.New(r.pipeline, r.cache, appsync.Options{
					LoadBodies: bodies,
					Logger:     r.log,
				})
			}

			res := r.poller.RunOnce(cmd.Context(), appsync.TriggerCLI)
			if res.AuthError != nil {
				return errors.New(res.AuthError.Message)
			}
			if res.Error != nil {
				return res.Error
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fetched %d notes, %d new, %d unread\n",
				res.Fetched, res.NewCount, r.store.UnreadCount())
			if res.Bodies.Requests > 0 {
				fmt.Fprintf(out, "bodies: %d requests, %d failed\n", res.Bodies.Requests, res.Bodies.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&bodies, "bodies", true, "also fetch note bodies")
	return cmd
}

func newListCommand(f *flags) *cobra.Command {
	var (
		number  int
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "list [filter]",
		Short: "Print notes of a filter view (latest, unread, comment, like, ...)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := model.FilterLatest
			if len(args) == 1 {
				filter = args[0]
			}

			r, err := setup(f, true)
			if err != nil {
				return err
			}
			defer r.Close()

			r.restore(cmd.Context())
			if refresh || r.store.Len() == 0 {
				if _, err := r.pipeline.LoadPage(cmd.Context(), feed.PageParams{
					Type:   filter,
					Number: number,
				}); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, n := range r.store.ByFilter(filter) {
				subject := ""
				if n.Subject != nil {
					subject = notetext.Line(n.Subject.HTML)
					if n.Subject.Text != "" {
						subject = n.Subject.Text
					}
				}
				marker := " "
				if n.IsUnread() {
					marker = "•"
				}
				glyph := theme.NoticonGlyph(model.Noticon(n.Type))
				fmt.Fprintf(out, "%s %s %-12d %-8s %s\n", glyph, marker, n.ID, n.Type, subject)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&number, "number", "n", 0, "page size (default from config)")
	cmd.Flags().BoolVar(&refresh, "refresh", true, "fetch before printing")
	return cmd
}

func newSeenCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "seen",
		Short: "Mark every fetched notification as seen",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup(f, true)
			if err != nil {
				return err
			}
			defer r.Close()

			if _, err := r.pipeline.LoadSubjects(cmd.Context(), feed.PageParams{Type: model.FilterLatest}); err != nil {
				return err
			}
			before := r.store.NumberNew()
			if err := r.pipeline.MarkSeen(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d new notes seen\n", before)
			return nil
		},
	}
}

// actionAliases maps command-line verbs to action kinds.
var actionAliases = map[string]model.ActionKind{
	"approve":   model.ActionApproveComment,
	"unapprove": model.ActionUnapproveComment,
	"spam":      model.ActionSpamComment,
	"unspam":    model.ActionUnspamComment,
	"trash":     model.ActionTrashComment,
	"untrash":   model.ActionUntrashComment,
}

func newModerateCommand(f *flags) *cobra.Command {
	var (
		wait bool
		yes  bool
	)

	cmd := &cobra.Command{
		Use:       "moderate <note-id> <approve|unapprove|spam|unspam|trash|untrash>",
		Short:     "Moderate the comment behind a notification",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"approve", "unapprove", "spam", "unspam", "trash", "untrash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNoteID(args[0])
			if err != nil {
				return err
			}
			kind, ok := actionAliases[strings.ToLower(args[1])]
			if !ok {
				kind, ok = model.ParseActionKind(args[1])
			}
			if !ok || kind == model.ActionReplyToComment {
				return fmt.Errorf("unknown action %q", args[1])
			}

			if !yes && (kind == model.ActionSpamComment || kind == model.ActionTrashComment) {
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("Really %s the comment of note %d?", args[1], id)).
					Value(&confirmed).
					Run()
				if err != nil {
					return err
				}
				if !confirmed {
					return nil
				}
			}

			r, err := setup(f, true)
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.pipeline.Reload(cmd.Context(), id); err != nil {
				return err
			}
			wf := r.workflow(id)
			defer wf.Dispose()

			c, err := wf.Invoke(cmd.Context(), kind)
			if err != nil {
				return err
			}
			return report(cmd, kind, c, wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "poll until the change is visible")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newReplyCommand(f *flags) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "reply <note-id> <text...>",
		Short: "Reply to the comment behind a notification",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNoteID(args[0])
			if err != nil {
				return err
			}

			text := strings.Join(args[1:], " ")
			if strings.TrimSpace(text) == "" {
				err := huh.NewText().
					Title(fmt.Sprintf("Reply to note %d", id)).
					Value(&text).
					Run()
				if err != nil {
					return err
				}
			}

			r, err := setup(f, true)
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.pipeline.Reload(cmd.Context(), id); err != nil {
				return err
			}
			wf := r.workflow(id)
			defer wf.Dispose()

			c, err := wf.SubmitReply(cmd.Context(), text)
			if err != nil {
				return err
			}
			return report(cmd, model.ActionReplyToComment, c, wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "poll until the reply is visible")
	return cmd
}

func newLoginCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store an API token in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			err := huh.NewInput().
				Title("API token").
				Description("A bearer token for the notifications API").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("token is required")
					}
					return nil
				}).
				Value(&token).
				Run()
			if err != nil {
				return err
			}

			v, err := credential.Open()
			if err != nil {
				return err
			}
			if err := v.SaveToken(token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token saved")
			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := credential.Open()
			if err != nil {
				return err
			}
			removed, err := v.Forget()
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(cmd.OutOrStdout(), "no token stored")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token removed")
			return nil
		},
	}
}

func newHistoryCommand(f *flags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent refresh runs from the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup(f, true)
			if err != nil {
				return err
			}
			defer r.Close()

			if r.cache == nil {
				return errors.New("no snapshot cache configured")
			}
			runs, err := r.cache.RecentSyncs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, run := range runs {
				status := "ok"
				if run.Error != "" {
					status = run.Error
				}
				fmt.Fprintf(out, "%-14s %-7s fetched %-3d %s (%s)\n",
					humanize.Time(run.StartedAt), run.Trigger, run.Fetched, status,
					run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "number", "n", 10, "runs to show")
	return cmd
}

// workflow creates the moderation workflow of one note.
func (r *runtime) workflow(id model.NoteID) *moderation.Workflow {
	return moderation.New(id, moderation.Deps{
		Notes:    r.store,
		Reloader: r.pipeline,
		API:      r.api,
		Stats:    r.stats,
		Logger:   r.log,
		Interval: r.cfg.ConfirmInterval(),
		MaxTicks: r.cfg.Moderation.ConfirmAttempts,
	})
}

// report prints the result of an accepted mutation, optionally waiting for
// its confirmation.
func report(cmd *cobra.Command, kind model.ActionKind, c *moderation.Confirmation, wait bool) error {
	out := cmd.OutOrStdout()
	if c == nil {
		fmt.Fprintf(out, "%s accepted\n", kind)
		return nil
	}
	if !wait {
		fmt.Fprintf(out, "%s accepted\n", kind)
		c.Cancel()
		return nil
	}

	fmt.Fprintf(out, "%s accepted, confirming...\n", kind)
	o, err := c.Wait(cmd.Context())
	if err != nil {
		c.Cancel()
		return err
	}

	switch o.Result {
	case moderation.Confirmed:
		fmt.Fprintf(out, "%s confirmed after %d checks\n", kind, o.Ticks)
	case moderation.Unconfirmed:
		fmt.Fprintf(out, "%s not yet visible after %d checks; it may still apply\n", kind, o.Ticks)
	default:
		return fmt.Errorf("%s: %s: %w", kind, o.Result, o.Err)
	}
	return nil
}

func parseNoteID(s string) (model.NoteID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid note id %q", s)
	}
	return model.NoteID(v), nil
}
