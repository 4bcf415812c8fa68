package formatter

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"gitlab.com/tozd/go/errors"
)

// DefaultModel is the model token counts are computed for.
const DefaultModel = "gpt-4o"

const fallbackEncoding = "cl100k_base"

// TokenCounter counts the tokens a model would see for a text.
type TokenCounter interface {
	CountTokens(text string) int
}

// Stats describes a copied text.
type Stats struct {
	Files int
	Lines int
	Bytes int
	Model string
	// Tokens is -1 when no tokenizer was available.
	Tokens int
}

// ComputeStats measures text, which holds the given number of files. A nil
// counter leaves Tokens at -1.
func ComputeStats(files int, text string, model string, counter TokenCounter) Stats {
	s := Stats{
		Files:  files,
		Lines:  strings.Count(text, "\n"),
		Bytes:  len(text),
		Model:  model,
		Tokens: -1,
	}
	if text != "" && !strings.HasSuffix(text, "\n") {
		s.Lines++
	}
	if counter != nil {
		s.Tokens = counter.CountTokens(text)
	}
	return s
}

var loaderOnce sync.Once

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter returns a tiktoken counter for model. Models tiktoken does
// not know fall back to the cl100k_base encoding. BPE tables are read from
// the embedded offline loader, never from the network.
func NewTokenCounter(model string) (TokenCounter, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	if model == "" {
		model = DefaultModel
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return tiktokenCounter{enc: enc}, nil
	}
	enc, fallbackErr := tiktoken.GetEncoding(fallbackEncoding)
	if fallbackErr != nil {
		return nil, errors.Errorf("loading tokenizer for model %q: %w", model, errors.Join(err, fallbackErr))
	}
	return tiktokenCounter{enc: enc}, nil
}
