package msg

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestIndentWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &IndentWriter{Indent: "  ", W: &buf}

	fmt.Fprint(w, "a\nb")
	fmt.Fprint(w, "c\n")
	fmt.Fprintln(w, "d")

	assert.Equal(t, "  a\n  bc\n  d\n", buf.String())
}

func TestMessages(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	Out = &buf
	t.Cleanup(func() {
		Out = color.Output
		Verbose = false
	})

	Info("wrote %s", "Makefile")
	Debug("hidden")
	Verbose = true
	Debug("%d rescanned", 2)
	Warn("careful")

	assert.Equal(t, "info: wrote Makefile\ndebug: 2 rescanned\nwarn: careful\n", buf.String())
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(4, 2, &buf)
	for range 4 {
		pb.Add(1)
	}
	pb.Finish()

	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, "100% [")
	assert.Contains(t, out, "4/4")
}
