package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// withApplication loads configuration, opens the database and wires the
// application for a one-shot command.
func withApplication(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, app *application) error) error {
	cfg, log, err := flags.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, dialect, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	app, err := newApplication(ctx, cfg, log, db, dialect, overrides{})
	if err != nil {
		return err
	}
	defer app.cleanup()

	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <session-token>",
		Short: "Run a session's hook pipeline in the foreground",
		Long: `Run a session's hook pipeline in the foreground and print the session.

Queued sessions are left alone; the pipeline only runs for sessions holding
an admission slot. The run is bounded by task.run_timeout, like background
runs, so it cannot outlive its claim.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, flags, func(ctx context.Context, app *application) error {
				sess, err := app.sessions.GetSessionByToken(ctx, args[0])
				if err != nil {
					return err
				}
				runCtx, cancel := context.WithTimeout(ctx, app.config.Task.RunTimeout)
				defer cancel()
				sess, err = app.coordinator.RunSession(runCtx, sess.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sess)
			})
		},
	}
}

func newSkipCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Move a job to admin_skipped",
	}

	skip := func(use, short string, fn func(ctx context.Context, app *application, id uuid.UUID) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid id %q: %w", args[0], err)
				}
				return withApplication(cmd, flags, func(ctx context.Context, app *application) error {
					v, err := fn(ctx, app, id)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), v)
				})
			},
		}
	}

	cmd.AddCommand(
		skip("session", "Skip a session and release its slot",
			func(ctx context.Context, app *application, id uuid.UUID) (any, error) {
				return app.coordinator.SkipSession(ctx, id)
			}),
		skip("content", "Skip a content item and every session waiting on it",
			func(ctx context.Context, app *application, id uuid.UUID) (any, error) {
				return app.coordinator.SkipContentItem(ctx, id)
			}),
		skip("question-set", "Skip a question set",
			func(ctx context.Context, app *application, id uuid.UUID) (any, error) {
				return app.coordinator.SkipQuestionSet(ctx, id)
			}),
	)
	return cmd
}
