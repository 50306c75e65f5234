// Package device provides headless stand-ins for the phone capabilities:
// permission prompts, a positioning source, a camera and a gallery.
package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/geotag/photomap/internal/permission"
)

// TerminalPrompter asks permission questions on a terminal.
type TerminalPrompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter reads answers from in and writes prompts to out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// Prompt implements permission.Prompter. Anything but y/yes denies.
func (p *TerminalPrompter) Prompt(ctx context.Context, kind permission.Kind, r permission.Rationale) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s\n%s\nAllow %s access? [y/N]: ", r.Title, r.Message, kind)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
