package applier

import (
	"context"
	"runtime/debug"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/snippy.go/model"
)

// Outcome is the result of one block in a batch together with the change it
// made, if any.
type Outcome struct {
	model.BlockResult
	Change *Change
}

// ApplyAll applies blocks and returns one outcome per block in input order.
// Blocks targeting the same file run sequentially in input order, so the
// last one wins; different files run concurrently, at most limit at a time
// (limit <= 0 means unbounded). A failing block never affects the others.
func (a *Applier) ApplyAll(ctx context.Context, blocks []model.ParsedBlock, limit int) []Outcome {
	outcomes := make([]Outcome, len(blocks))

	var order []string
	groups := make(map[string][]int)
	for i, b := range blocks {
		if _, ok := groups[b.Filename]; !ok {
			order = append(order, b.Filename)
		}
		groups[b.Filename] = append(groups[b.Filename], i)
	}

	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, name := range order {
		indices := groups[name]
		g.Go(func() error {
			for _, i := range indices {
				outcomes[i] = a.applyOne(ctx, i, blocks[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (a *Applier) applyOne(ctx context.Context, index int, block model.ParsedBlock) (out Outcome) {
	out.BlockResult = model.BlockResult{Index: index, Filename: block.Filename, Type: block.Type}

	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().
				Str("file", block.Filename).
				Bytes("stack", debug.Stack()).
				Msgf("panic while applying block: %v", r)
			err := newError(model.KindIO, block.Filename, errors.Errorf("internal panic: %v", r))
			out.Change = nil
			out.Kind = err.Kind
			out.Err = err
		}
	}()

	change, err := a.Apply(ctx, block)
	if err != nil {
		out.Kind = KindOf(err)
		out.Err = err
		zerolog.Ctx(ctx).Warn().Err(err).Str("file", block.Filename).Msg("block failed")
		return out
	}
	out.Action = change.Action
	out.Change = change
	return out
}

// Results extracts the block results from outcomes.
func Results(outcomes []Outcome) []model.BlockResult {
	results := make([]model.BlockResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = o.BlockResult
	}
	return results
}

// Changes returns the changes that altered a file, in block order.
func Changes(outcomes []Outcome) []*Change {
	var changes []*Change
	for _, o := range outcomes {
		if o.Change != nil && o.Change.Action != model.ActionUnchanged {
			changes = append(changes, o.Change)
		}
	}
	return changes
}
