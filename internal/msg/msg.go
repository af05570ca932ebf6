package msg

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	// Out receives every message
	Out io.Writer = color.Output
	// Verbose enables Debug output
	Verbose bool
)

func line(label, format string, a ...any) {
	fmt.Fprintf(Out, "%s: %s\n", label, fmt.Sprintf(format, a...))
}

func Error(format string, a ...any) { line(color.HiRedString("error"), format, a...) }

func Warn(format string, a ...any) { line(color.YellowString("warn"), format, a...) }

func Info(format string, a ...any) { line(color.HiGreenString("info"), format, a...) }

// Debug prints only in verbose mode
func Debug(format string, a ...any) {
	if Verbose {
		line(color.HiBlueString("debug"), format, a...)
	}
}

func Fatal(format string, a ...any) {
	line(color.RedString("fatal"), format, a...)
	os.Exit(1)
}

// IndentWriter prefixes every line written through it
type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		if !w.didIndent {
			if _, err := io.WriteString(w.W, w.Indent); err != nil {
				return n, err
			}
			w.didIndent = true
		}
		end := len(p)
		for i, c := range p {
			if c == '\n' || c == '\r' {
				end = i + 1
				w.didIndent = false
				break
			}
		}
		m, err := w.W.Write(p[:end])
		n += m
		if err != nil {
			return n, err
		}
		p = p[end:]
	}
	return n, nil
}
