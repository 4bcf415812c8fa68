package snippy

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/internal/applier"
	"github.com/sokinpui/snippy.go/internal/config"
	"github.com/sokinpui/snippy.go/internal/formatter"
	"github.com/sokinpui/snippy.go/internal/fs"
	"github.com/sokinpui/snippy.go/internal/nvim"
	"github.com/sokinpui/snippy.go/internal/parser"
	"github.com/sokinpui/snippy.go/internal/source"
	"github.com/sokinpui/snippy.go/internal/state"
	"github.com/sokinpui/snippy.go/internal/watcher"
	"github.com/sokinpui/snippy.go/model"
)

// ErrHistoryDisabled is returned by Undo when history is turned off.
var ErrHistoryDisabled = errors.Base("history is disabled")

// Clipboard is read by watch and apply and written by copy.
type Clipboard interface {
	source.Reader
	source.Writer
}

// Option customizes an App.
type Option func(*App)

// WithClipboard replaces the system clipboard.
func WithClipboard(c Clipboard) Option {
	return func(a *App) { a.clipboard = c }
}

// WithInput replaces the stdin-or-clipboard input of ApplyOnce.
func WithInput(r source.Reader) Option {
	return func(a *App) { a.input = r }
}

// App orchestrates the entire application logic.
type App struct {
	cfg       *config.Config
	ws        *fs.Workspace
	extractor *parser.Extractor
	applier   *applier.Applier
	history   *state.Manager
	reloader  *nvim.Reloader
	clipboard Clipboard
	input     source.Reader
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// New creates a new App instance.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	mode, ok := parser.ParseAnnotationMode(cfg.Annotation)
	if !ok {
		return nil, errors.WithDetails(config.ErrInvalidAnnotation, "value", cfg.Annotation)
	}

	ws, err := fs.NewWorkspace(cfg.Dir)
	if err != nil {
		return nil, errors.Errorf("failed to open base directory: %w", err)
	}

	a := &App{
		cfg:       cfg,
		ws:        ws,
		extractor: parser.NewExtractor(parser.Options{Mode: mode, Extensions: cfg.Apply.Extensions}),
		applier:   applier.New(ws, cfg.SearchWindow),
		clipboard: source.Clipboard{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.input == nil {
		a.input = source.NewProvider(a.clipboard)
	}

	if cfg.History {
		a.history, err = state.New(ws, cfg.HistoryLimit)
		if err != nil {
			return nil, errors.Errorf("failed to initialize history: %w", err)
		}
	}
	if cfg.NvimReload {
		if addr := nvim.Address(); addr != "" {
			a.reloader = nvim.New(addr, ws)
		}
	}
	return a, nil
}

// Close releases resources held by the App.
func (a *App) Close() {
	if a.history != nil {
		a.history.Close()
	}
}

// Workspace returns the base directory changes are applied in.
func (a *App) Workspace() *fs.Workspace {
	return a.ws
}

// Parse extracts the change blocks of content without applying them.
func (a *App) Parse(ctx context.Context, content string) parser.Result {
	return a.extractor.Parse(ctx, content)
}

// Apply parses content and applies every block it contains.
func (a *App) Apply(ctx context.Context, content string) (model.Summary, []*applier.Change) {
	res := a.extractor.Parse(ctx, content)
	if len(res.Blocks) == 0 {
		s := model.NewSummary(nil, len(res.Skipped))
		s.Message = "No valid changes were generated. Nothing to do."
		return s, nil
	}

	outcomes := a.applier.ApplyAll(ctx, res.Blocks, a.cfg.Watch.Concurrency)
	summary := model.NewSummary(applier.Results(outcomes), len(res.Skipped))
	changes := applier.Changes(outcomes)
	a.afterBatch(ctx, summary, changes)
	return summary, changes
}

// Preview computes what Apply would do without writing anything. Blocks are
// prepared independently against the files currently on disk.
func (a *App) Preview(ctx context.Context, content string) (model.Summary, []*applier.Change) {
	res := a.extractor.Parse(ctx, content)

	results := make([]model.BlockResult, len(res.Blocks))
	var changes []*applier.Change
	for i, b := range res.Blocks {
		results[i] = model.BlockResult{Index: i, Filename: b.Filename, Type: b.Type}
		change, err := a.applier.Prepare(ctx, b)
		if err != nil {
			results[i].Kind = applier.KindOf(err)
			results[i].Err = err
			continue
		}
		results[i].Action = change.Action
		changes = append(changes, change)
	}

	summary := model.NewSummary(results, len(res.Skipped))
	summary.Message = "Dry run: nothing was written."
	return summary, changes
}

// ApplyOnce reads stdin (when piped) or the clipboard and applies it. With
// dry_run set the changes are only previewed.
func (a *App) ApplyOnce(ctx context.Context) (summary model.Summary, changes []*applier.Change, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	content, err := a.input.Read(ctx)
	if err != nil {
		return model.Summary{}, nil, err
	}
	if content == "" {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil, nil
	}

	if a.cfg.Apply.DryRun {
		summary, changes = a.Preview(ctx, content)
		return summary, changes, nil
	}
	summary, changes = a.Apply(ctx, content)
	return summary, changes, nil
}

// Watch polls the clipboard, or the configured source file, and applies
// every new text carrying the marker until ctx is cancelled.
func (a *App) Watch(ctx context.Context, onBatch ...watcher.BatchFunc) error {
	var src source.Reader = a.clipboard
	if a.cfg.Watch.SourceFile != "" {
		src = source.File{Path: a.cfg.Watch.SourceFile}
	}

	w := watcher.New(watcher.Config{
		Interval:      time.Duration(a.cfg.Watch.Interval) * time.Millisecond,
		Marker:        a.cfg.Watch.FirstLine,
		ApplyExisting: a.cfg.Watch.ApplyExisting,
		Concurrency:   a.cfg.Watch.Concurrency,
	}, src, a.extractor, a.applier)

	w.OnBatch(a.afterBatch)
	for _, fn := range onBatch {
		w.OnBatch(fn)
	}
	return w.Run(ctx)
}

// Undo reverts the most recent applied batch.
func (a *App) Undo(ctx context.Context) (*state.UndoResult, error) {
	if a.history == nil {
		return nil, errors.WithStack(ErrHistoryDisabled)
	}
	res, err := a.history.Undo(ctx)
	if err != nil {
		return res, err
	}
	if a.reloader != nil {
		paths := append(append([]string{}, res.Restored...), res.Removed...)
		if err := a.reloader.Reload(ctx, paths); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("could not reload nvim buffers")
		}
	}
	return res, nil
}

// CopyResult is the serialized text of a copy and, unless copy.no_stats is
// set, its statistics.
type CopyResult struct {
	Text  string
	Stats *formatter.Stats
}

// Copy serializes the files matched by patterns. Unless copy.stdout is set
// the text is also placed on the clipboard.
func (a *App) Copy(ctx context.Context, patterns []string) (CopyResult, error) {
	files, err := formatter.Collect(ctx, a.ws, patterns, a.cfg.Copy.Ignore)
	if err != nil {
		return CopyResult{}, err
	}
	if len(files) == 0 {
		return CopyResult{}, errors.Errorf("no files matched %v", patterns)
	}

	f, err := formatter.New(copyOptions(a.cfg.Copy))
	if err != nil {
		return CopyResult{}, err
	}
	res := CopyResult{Text: f.Format(files)}

	if !a.cfg.Copy.Stdout {
		if err := a.clipboard.Write(ctx, res.Text); err != nil {
			return CopyResult{}, err
		}
	}
	zerolog.Ctx(ctx).Info().Int("files", len(files)).Int("bytes", len(res.Text)).Msg("copied files")

	if !a.cfg.Copy.NoStats {
		stats := a.copyStats(ctx, len(files), res.Text)
		res.Stats = &stats
	}
	return res, nil
}

func (a *App) copyStats(ctx context.Context, files int, text string) formatter.Stats {
	name := a.cfg.Copy.Model
	if name == "" {
		name = formatter.DefaultModel
	}
	counter, err := formatter.NewTokenCounter(name)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("token count unavailable")
		return formatter.ComputeStats(files, text, name, nil)
	}
	return formatter.ComputeStats(files, text, name, counter)
}

func copyOptions(c config.CopyConfig) formatter.Options {
	opts := formatter.Options{
		FilenameFormat:  formatter.FilenameFormat(c.FilenameFormat),
		Wrap:            formatter.WrapMarkdown,
		LineNumberWidth: c.LineNumber,
		Prefix:          c.Prefix,
		Header:          c.FirstLine,
	}
	switch {
	case c.XML:
		opts.Wrap = formatter.WrapXML
	case c.NoMarkdown:
		opts.Wrap = formatter.WrapNone
	}
	return opts
}

// afterBatch records history and reloads editor buffers for applied changes.
func (a *App) afterBatch(ctx context.Context, summary model.Summary, changes []*applier.Change) {
	if len(changes) == 0 {
		return
	}
	logger := zerolog.Ctx(ctx)
	if a.history != nil {
		if _, err := a.history.Record(ctx, changes); err != nil {
			logger.Warn().Err(err).Msg("could not record history, undo unavailable for this batch")
		}
	}
	if a.reloader != nil {
		a.reloader.OnBatch(ctx, summary, changes)
	}
}
