package applier

import (
	"fmt"

	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/model"
)

// ApplyError is returned for every failure to apply a block. It is scoped
// to a single block and never affects siblings.
type ApplyError struct {
	Kind     model.ErrorKind
	Filename string
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Filename, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

func newError(kind model.ErrorKind, filename string, err error) *ApplyError {
	return &ApplyError{Kind: kind, Filename: filename, Err: err}
}

// KindOf returns the error kind carried by err. Errors that are not an
// ApplyError are reported as I/O failures.
func KindOf(err error) model.ErrorKind {
	if err == nil {
		return model.KindNone
	}
	var ae *ApplyError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return model.KindIO
}
