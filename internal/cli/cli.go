// Package cli handles terminal output for the comet command: color detection
// and lipgloss-styled rendering, with a plain fallback for pipes and CI.
package cli

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// OutputMode selects between styled and plain rendering.
type OutputMode int

const (
	// ModeTTY enables colored output for interactive terminals.
	ModeTTY OutputMode = iota
	// ModePlain strips styling for pipes and CI logs.
	ModePlain
)

// Output is the sink command handlers write through.
type Output struct {
	Mode   OutputMode
	Writer io.Writer
}

// Detect picks the output mode for stdout: TTY unless piped, NO_COLOR is set
// (https://no-color.org/), or TERM=dumb.
func Detect() *Output {
	mode := ModePlain
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		mode = ModeTTY
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		mode = ModePlain
	}
	return &Output{Mode: mode, Writer: os.Stdout}
}

// Plain returns an output that never styles, for tests and --plain.
func Plain(w io.Writer) *Output {
	return &Output{Mode: ModePlain, Writer: w}
}

// IsTTY reports whether styled output is active.
func (o *Output) IsTTY() bool { return o.Mode == ModeTTY }
