package corelog

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Console is a concrete Logger that writes level-prefixed, color-tinted
// lines to an output stream. Debug is suppressed unless Verbose is set.
type Console struct {
	Out     io.Writer
	Verbose bool
}

// NewConsole returns a Console writing to os.Stderr.
func NewConsole(verbose bool) *Console {
	return &Console{Out: os.Stderr, Verbose: verbose}
}

func (c *Console) colorize(text string, attrs ...color.Attribute) string {
	if c.Out != os.Stderr && c.Out != os.Stdout {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func (c *Console) Debug(format string, args ...interface{}) {
	if !c.Verbose {
		return
	}
	fmt.Fprintln(c.Out, c.colorize("[DEBUG] ", color.FgCyan)+fmt.Sprintf(format, args...))
}

func (c *Console) Info(format string, args ...interface{}) {
	fmt.Fprintln(c.Out, c.colorize("[INFO] ", color.FgGreen)+fmt.Sprintf(format, args...))
}

func (c *Console) Warn(format string, args ...interface{}) {
	fmt.Fprintln(c.Out, c.colorize("[WARN] ", color.FgYellow, color.Bold)+fmt.Sprintf(format, args...))
}

func (c *Console) Error(format string, args ...interface{}) {
	fmt.Fprintln(c.Out, c.colorize("[ERROR] ", color.FgRed, color.Bold)+fmt.Sprintf(format, args...))
}

var _ Logger = (*Console)(nil)
