package transcript

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// WriterSink prints every entry to a writer, styled when the writer is a
// terminal.
type WriterSink struct {
	mu       sync.Mutex
	w        io.Writer
	renderer *Renderer
}

var _ Sink = &WriterSink{}

func NewWriterSink(w io.Writer) *WriterSink {
	styled := false
	width := 0
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		styled = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		if styled {
			if cols, _, err := term.GetSize(int(fd)); err == nil {
				width = cols
			}
		}
	}
	return &WriterSink{w: w, renderer: NewRenderer(width, styled)}
}

func (s *WriterSink) Publish(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.w, s.renderer.Render(e)); err != nil {
		return errors.Wrap(err, "write transcript entry")
	}
	return nil
}
