package harness

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Palette holds the console colors used by the logger and the reporter.
type Palette struct {
	Header  *color.Color
	Name    *color.Color
	Path    *color.Color
	Success *color.Color
	Failure *color.Color
	Muted   *color.Color
}

// NewPalette creates the console palette. When enabled is false every color
// renders plain text; otherwise color follows terminal detection.
func NewPalette(enabled bool) Palette {
	p := Palette{
		Header:  color.New(color.FgYellow),
		Name:    color.New(color.FgCyan),
		Path:    color.New(color.FgBlue),
		Success: color.New(color.FgGreen),
		Failure: color.New(color.FgRed),
		Muted:   color.New(color.FgHiBlack),
	}
	if !enabled {
		for _, c := range []*color.Color{p.Header, p.Name, p.Path, p.Success, p.Failure, p.Muted} {
			c.DisableColor()
		}
	}
	return p
}

// stdoutLogger implements TestLogger for CLI mode, outputting to stdout/stderr
type stdoutLogger struct {
	verbose bool
	debug   bool
	out     io.Writer
	errOut  io.Writer
	palette Palette
}

// NewStdoutLogger creates a logger that outputs to stdout/stderr
func NewStdoutLogger(verbose, debug bool, palette Palette) TestLogger {
	return NewWriterLogger(os.Stdout, os.Stderr, verbose, debug, palette)
}

// NewWriterLogger creates a logger writing to the given writers
func NewWriterLogger(out, errOut io.Writer, verbose, debug bool, palette Palette) TestLogger {
	return &stdoutLogger{
		verbose: verbose,
		debug:   debug,
		out:     out,
		errOut:  errOut,
		palette: palette,
	}
}

func (l *stdoutLogger) Debug(format string, args ...interface{}) {
	if l.debug {
		l.palette.Muted.Fprintf(l.out, format, args...)
	}
}

func (l *stdoutLogger) Info(format string, args ...interface{}) {
	if l.verbose || l.debug {
		fmt.Fprintf(l.out, format, args...)
	}
}

func (l *stdoutLogger) Error(format string, args ...interface{}) {
	l.palette.Failure.Fprintf(l.errOut, format, args...)
}

func (l *stdoutLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *stdoutLogger) IsVerboseEnabled() bool {
	return l.verbose
}

// silentLogger implements TestLogger suppressing all output
type silentLogger struct {
	verbose bool
	debug   bool
}

// NewSilentLogger creates a logger that suppresses all output
func NewSilentLogger(verbose, debug bool) TestLogger {
	return &silentLogger{
		verbose: verbose,
		debug:   debug,
	}
}

func (l *silentLogger) Debug(format string, args ...interface{}) {}

func (l *silentLogger) Info(format string, args ...interface{}) {}

func (l *silentLogger) Error(format string, args ...interface{}) {}

func (l *silentLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *silentLogger) IsVerboseEnabled() bool {
	return l.verbose
}
