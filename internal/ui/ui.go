package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/internal/applier"
	"github.com/sokinpui/snippy.go/internal/formatter"
	"github.com/sokinpui/snippy.go/model"
)

// Output receives every line printed by this package.
var Output io.Writer = os.Stderr

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	AddColor     = color.New(color.FgGreen)
	RemoveColor  = color.New(color.FgRed)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Output, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Output, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Output, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Output, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Output, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Output, "  "+format+"\n", a...)
}

// --- Summaries ---

func list(files []string) {
	for _, f := range files {
		fmt.Fprintf(Output, "  - %s\n", f)
	}
}

// PrintSummary reports the outcome of one batch.
func PrintSummary(s model.Summary) {
	Header("\n--- Update Summary ---")
	if s.Message != "" {
		Info(s.Message)
	}

	if len(s.Results) == 0 && s.Skipped == 0 {
		Info("No files were updated.")
		return
	}

	if len(s.Created) > 0 {
		Success("Created %d new file(s):", len(s.Created))
		list(s.Created)
	}
	if len(s.Modified) > 0 {
		Success("Modified %d file(s):", len(s.Modified))
		list(s.Modified)
	}
	if len(s.Unchanged) > 0 {
		Info("Unchanged %d file(s):", len(s.Unchanged))
		list(s.Unchanged)
	}
	if failed := s.FailedCount(); failed > 0 {
		Error("Failed to apply %d block(s):", failed)
		for _, r := range s.Results {
			if !r.OK() {
				fmt.Fprintf(Output, "  - %s [%s]: %v\n", r.Filename, r.Kind, unwrap(r.Err))
			}
		}
		byKind := s.FailuresByKind()
		kinds := make([]string, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(Output, "    %s: %d\n", k, byKind[model.ErrorKind(k)])
		}
	}
	if s.Skipped > 0 {
		Warning("Skipped %d malformed block(s).", s.Skipped)
	}
}

func unwrap(err error) error {
	var ae *applier.ApplyError
	if errors.As(err, &ae) {
		return ae.Err
	}
	return err
}

// PrintUndoSummary reports the files an undo restored or removed.
func PrintUndoSummary(restored, removed []string) {
	Header("\n--- Undo Summary ---")
	if len(restored) > 0 {
		Success("Restored %d file(s):", len(restored))
		list(restored)
	}
	if len(removed) > 0 {
		Success("Removed %d created file(s):", len(removed))
		list(removed)
	}
}

// PrintPreview writes the diff a change would make, coloured by line kind.
func PrintPreview(c *applier.Change) error {
	text, err := c.UnifiedDiff()
	if err != nil {
		return err
	}
	Header("%s (%s)", c.Filename, c.Action)
	if text == "" {
		Info("  no changes")
		return nil
	}
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		switch {
		case len(line) >= 3 && (line[:3] == "+++" || line[:3] == "---"):
			HeaderColor.Fprintln(Output, line)
		case len(line) > 0 && line[0] == '+':
			AddColor.Fprintln(Output, line)
		case len(line) > 0 && line[0] == '-':
			RemoveColor.Fprintln(Output, line)
		case len(line) > 1 && line[:2] == "@@":
			InfoColor.Fprintln(Output, line)
		default:
			fmt.Fprintln(Output, line)
		}
	}
	return nil
}

// PrintCopyStats reports the size of a copied text.
func PrintCopyStats(s formatter.Stats) {
	Header("\n--- Copy Stats ---")
	fmt.Fprintf(Output, "  Files:  %d\n", s.Files)
	fmt.Fprintf(Output, "  Lines:  %d\n", s.Lines)
	fmt.Fprintf(Output, "  Bytes:  %d\n", s.Bytes)
	if s.Tokens < 0 {
		fmt.Fprintf(Output, "  Tokens: unavailable (%s)\n", s.Model)
		return
	}
	fmt.Fprintf(Output, "  Tokens: %d (%s)\n", s.Tokens, s.Model)
}
