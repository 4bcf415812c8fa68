package watcher

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/internal/applier"
	"github.com/sokinpui/snippy.go/internal/parser"
	"github.com/sokinpui/snippy.go/internal/source"
	"github.com/sokinpui/snippy.go/model"
)

const (
	DefaultInterval = time.Second
	DefaultMarker   = "# Relevant Code"
)

// Config controls the polling loop.
type Config struct {
	// Interval between reads of the source.
	Interval time.Duration
	// Marker must start the first line of the text for it to be applied.
	// Empty accepts any text.
	Marker string
	// ApplyExisting applies the text already present when Run starts.
	ApplyExisting bool
	// Concurrency bounds how many files are written at once.
	Concurrency int
}

// BatchFunc is called after every applied batch.
type BatchFunc func(ctx context.Context, summary model.Summary, changes []*applier.Change)

// Watcher polls a text source and applies every new qualifying snapshot.
type Watcher struct {
	cfg       Config
	src       source.Reader
	extractor *parser.Extractor
	applier   *applier.Applier
	onBatch   []BatchFunc
	state     State
}

// New creates a Watcher.
func New(cfg Config, src source.Reader, extractor *parser.Extractor, a *applier.Applier) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Watcher{cfg: cfg, src: src, extractor: extractor, applier: a}
}

// OnBatch registers fn to receive the summary of each applied batch.
func (w *Watcher) OnBatch(fn BatchFunc) {
	w.onBatch = append(w.onBatch, fn)
}

// Run polls until ctx is cancelled. A batch that has started applying is
// always finished before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	w.state.Reset()

	if !w.cfg.ApplyExisting {
		text, err := w.src.Read(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("could not read initial source text")
		} else {
			w.state.Observe(text)
		}
	}

	var wake <-chan struct{}
	if n, ok := w.src.(source.Notifier); ok {
		ch, err := n.Notify(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("change notifications unavailable, polling only")
		} else {
			wake = ch
		}
	}

	logger.Info().
		Dur("interval", w.cfg.Interval).
		Str("marker", w.cfg.Marker).
		Str("dir", w.applier.Workspace().Root()).
		Msg("watching for changes")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, _, err := w.safeCycle(ctx); err != nil {
			logger.Warn().Err(err).Msg("watch cycle failed")
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("watcher stopped")
			return nil
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		}
	}
}

func (w *Watcher) safeCycle(ctx context.Context) (summary model.Summary, processed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().Bytes("stack", debug.Stack()).Msgf("panic in watch cycle: %v", r)
			err = errors.Errorf("internal panic: %v", r)
		}
	}()
	return w.Cycle(ctx)
}

// Cycle reads the source once and applies it if it changed and carries the
// marker. processed reports whether a batch was applied.
func (w *Watcher) Cycle(ctx context.Context) (model.Summary, bool, error) {
	logger := zerolog.Ctx(ctx)

	if ctx.Err() != nil {
		return model.Summary{}, false, nil
	}

	text, err := w.src.Read(ctx)
	if err != nil {
		return model.Summary{}, false, err
	}
	if !w.state.Observe(text) {
		return model.Summary{}, false, nil
	}
	if !HasMarker(text, w.cfg.Marker) {
		logger.Debug().Msg("source changed but has no marker, ignoring")
		return model.Summary{}, false, nil
	}

	res := w.extractor.Parse(ctx, text)
	if len(res.Blocks) == 0 {
		logger.Info().Int("skipped", len(res.Skipped)).Msg("no applicable blocks found")
		return model.NewSummary(nil, len(res.Skipped)), true, nil
	}

	// Writes that have started complete even if the watcher is stopping.
	applyCtx := context.WithoutCancel(ctx)
	outcomes := w.applier.ApplyAll(applyCtx, res.Blocks, w.cfg.Concurrency)
	summary := model.NewSummary(applier.Results(outcomes), len(res.Skipped))

	logger.Info().
		Int("blocks", len(res.Blocks)).
		Int("applied", summary.Applied()).
		Int("failed", summary.FailedCount()).
		Int("skipped", summary.Skipped).
		Msg("batch applied")

	changes := applier.Changes(outcomes)
	for _, fn := range w.onBatch {
		fn(applyCtx, summary, changes)
	}
	return summary, true, nil
}

// HasMarker reports whether the first line of text starts with marker.
func HasMarker(text, marker string) bool {
	if marker == "" {
		return true
	}
	first, _, _ := strings.Cut(text, "\n")
	return strings.HasPrefix(strings.TrimSpace(first), marker)
}
