package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/internal/applier"
	"github.com/sokinpui/snippy.go/internal/config"
	"github.com/sokinpui/snippy.go/internal/logging"
	"github.com/sokinpui/snippy.go/internal/state"
	"github.com/sokinpui/snippy.go/internal/tui"
	"github.com/sokinpui/snippy.go/internal/ui"
	"github.com/sokinpui/snippy.go/model"
	"github.com/sokinpui/snippy.go/snippy"
)

// ErrBlocksFailed is returned by apply when at least one block failed.
var ErrBlocksFailed = errors.Base("some blocks failed to apply")

type rootOptions struct {
	configFile string
}

// NewRootCommand builds the snippy command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "snippy",
		Short: "Move code between files and an LLM chat through the clipboard",
		Long: "snippy copies files into an annotated text block for pasting into a prompt,\n" +
			"and applies the code blocks and unified diffs of a pasted reply back to disk.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Config file (default .snippy.yaml in the working directory).")
	flags.String("log-level", "info", "Log level: debug, info, warn, error.")
	flags.String("annotation", "auto", "Filename annotations to recognise: auto, heading, first-line.")
	flags.Int("search-window", 3, "Lines a hunk may drift from its stated position.")
	flags.Bool("history", true, "Record applied batches so they can be undone.")

	cmd.AddCommand(
		newCopyCommand(opts),
		newWatchCommand(opts),
		newApplyCommand(opts),
		newUndoCommand(opts),
	)
	return cmd
}

var rootBindings = map[string]string{
	"log_level":     "log-level",
	"annotation":    "annotation",
	"search_window": "search-window",
	"history":       "history",
}

// setup loads the configuration with the command's flags bound over it and
// returns a context carrying the configured logger.
func setup(cmd *cobra.Command, opts *rootOptions, bindings map[string]string) (context.Context, *config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, errors.Errorf("failed to get working directory: %w", err)
	}
	loader := config.NewLoader(wd, opts.configFile)

	bind := func(key, name string, set *pflag.FlagSet) error {
		return loader.BindFlag(key, set.Lookup(name))
	}
	for key, name := range rootBindings {
		if err := bind(key, name, cmd.Flags()); err != nil {
			return nil, nil, err
		}
	}
	for key, name := range bindings {
		if err := bind(key, name, cmd.Flags()); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	ctx := logging.Context(cmd.Context(), cfg.LogLevel)
	if used := loader.ConfigFileUsed(); used != "" {
		zerolog.Ctx(ctx).Debug().Str("file", used).Msg("loaded config")
	}
	return ctx, cfg, nil
}

func newCopyCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy <files or globs...>",
		Short: "Copy files to the clipboard as annotated code blocks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := setup(cmd, opts, map[string]string{
				"copy.no_markdown":     "no-markdown",
				"copy.xml":             "xml",
				"copy.line_number":     "line-number",
				"copy.prefix":          "prefix",
				"copy.filename_format": "filename-format",
				"copy.first_line":      "first-line",
				"copy.stdout":          "stdout",
				"copy.ignore":          "ignore",
				"copy.model":           "model",
				"copy.no_stats":        "no-stats",
			})
			if err != nil {
				return err
			}

			app, err := snippy.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Copy(ctx, args)
			if err != nil {
				return err
			}
			if cfg.Copy.Stdout {
				fmt.Fprint(cmd.OutOrStdout(), res.Text)
			} else {
				ui.Success("Copied %d bytes to the clipboard.", len(res.Text))
			}
			if res.Stats != nil {
				ui.PrintCopyStats(*res.Stats)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolP("no-markdown", "m", false, "Do not wrap files in markdown code fences.")
	f.Bool("xml", false, "Wrap files in <file> tags instead of code fences.")
	f.IntP("line-number", "l", 0, "Prefix lines with numbers padded to this width (0 disables).")
	f.StringP("prefix", "p", "|", "Separator between line number and line.")
	f.String("filename-format", "heading", "How to announce file paths: none, heading, first-line.")
	f.String("first-line", "# Relevant Code\n", "Header written before the files.")
	f.Bool("stdout", false, "Print to stdout instead of the clipboard.")
	f.StringSlice("ignore", []string{}, "Glob patterns of files to leave out.")
	f.StringP("model", "M", "gpt-4o", "Model whose tokenizer counts the copied text.")
	f.BoolP("no-stats", "s", false, "Do not print statistics about the copied text.")
	return cmd
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the clipboard and apply pasted replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setup(cmd, opts, map[string]string{
				"dir":                  "watch-path",
				"watch.interval":       "interval",
				"watch.first_line":     "first-line",
				"watch.source_file":    "source-file",
				"watch.apply_existing": "apply-existing",
				"watch.concurrency":    "concurrency",
			})
			if err != nil {
				return err
			}

			app, err := snippy.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ui.Header("--- Watching for text starting with %q (Ctrl+C to stop) ---", cfg.Watch.FirstLine)
			return app.Watch(ctx, func(_ context.Context, s model.Summary, _ []*applier.Change) {
				ui.PrintSummary(s)
			})
		},
	}

	f := cmd.Flags()
	f.IntP("interval", "i", 1000, "Polling interval in milliseconds.")
	f.StringP("watch-path", "x", ".", "Base directory files are written to.")
	f.String("first-line", "# Relevant Code", "Only apply text whose first line starts with this marker (empty accepts all).")
	f.String("source-file", "", "Watch this file instead of the clipboard.")
	f.Bool("apply-existing", false, "Apply the text already present at startup.")
	f.Int("concurrency", 4, "Files written in parallel.")
	return cmd
}

func newApplyCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a reply from stdin (when piped) or the clipboard once",
		Example: "  pbpaste | snippy apply -e py\n" +
			"  snippy apply --dry-run",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setup(cmd, opts, map[string]string{
				"apply.dry_run":    "dry-run",
				"apply.plain":      "plain",
				"apply.extensions": "extension",
			})
			if err != nil {
				return err
			}

			app, err := snippy.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			var summary model.Summary
			if cfg.Apply.Plain || cfg.Apply.DryRun {
				var changes []*applier.Change
				summary, changes, err = app.ApplyOnce(ctx)
				if err != nil {
					return withStack(err)
				}
				if cfg.Apply.DryRun {
					for _, c := range changes {
						if err := ui.PrintPreview(c); err != nil {
							return err
						}
					}
				}
				ui.PrintSummary(summary)
			} else {
				m := tui.New(func() (model.Summary, error) {
					s, _, err := app.ApplyOnce(ctx)
					return s, err
				})
				final, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(os.Stderr)).Run()
				if err != nil {
					return errors.Errorf("running program: %w", err)
				}
				result := final.(tui.Model)
				if err := result.Err(); err != nil {
					return withStack(err)
				}
				summary = result.Summary()
			}

			if n := summary.FailedCount(); n > 0 && !cfg.Apply.DryRun {
				return errors.WithDetails(ErrBlocksFailed, "failed", n)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Bool("dry-run", false, "Show the changes as diffs without writing them.")
	f.Bool("plain", false, "Print a plain summary instead of the interactive view.")
	f.StringSliceP("extension", "e", []string{}, "Filter by extension. Use 'diff' to process only diff blocks (e.g., 'py', 'js', 'diff').")
	return cmd
}

func newUndoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Revert the last applied batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setup(cmd, opts, nil)
			if err != nil {
				return err
			}

			app, err := snippy.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Undo(ctx)
			if errors.Is(err, state.ErrNoHistory) {
				ui.Info("No operation to undo.")
				return nil
			}
			if err != nil {
				return err
			}
			ui.PrintUndoSummary(res.Restored, res.Removed)
			return nil
		},
	}
}

// withStack prints the stack of a recovered panic before returning err.
func withStack(err error) error {
	var detailed *snippy.DetailedError
	if errors.As(err, &detailed) {
		fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
	}
	return err
}
