// Package interactive provides the line-oriented device shell: text
// commands are translated to binary messages, sent over the session,
// and the responses rendered back as text. Unsolicited notifications
// are printed as they arrive without corrupting the prompt.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/kbi-protocol/kbi-go/pkg/catalog"
	"github.com/kbi-protocol/kbi-go/pkg/kbi"
)

// Shell is the interactive command loop over one device session.
type Shell struct {
	rl   *readline.Instance
	sess *kbi.Session
	cat  *catalog.Catalog
}

// NewShell creates the shell. Close releases the terminal.
func NewShell(sess *kbi.Session, cat *catalog.Catalog) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kbi> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl, sess: sess, cat: cat}, nil
}

// Close releases the terminal.
func (s *Shell) Close() error {
	return s.rl.Close()
}

// Stdout returns the shell's coordinated stdout writer. Writing
// through it keeps the prompt intact.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns the shell's coordinated stderr writer.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run reads commands until EOF, "exit" or context cancellation.
func (s *Shell) Run(ctx context.Context) error {
	// Notifications print between prompts.
	sub := s.sess.Notifications()
	defer sub.Cancel()
	go func() {
		for n := range sub.C {
			fmt.Fprintf(s.rl.Stdout(), "! notification code=0x%02x payload=% X\n", n.Code, n.Payload)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return nil
		case line == "help":
			s.printHelp()
			continue
		}

		s.execute(ctx, line)
	}
}

// execute translates one text command, sends it and prints the
// rendered response.
func (s *Shell) execute(ctx context.Context, line string) {
	cmd, entry, err := s.cat.Translate(line)
	if err != nil {
		fmt.Fprintf(s.rl.Stderr(), "error: %v\n", err)
		return
	}

	resp, err := s.sess.Send(ctx, cmd)
	if err != nil {
		fmt.Fprintf(s.rl.Stderr(), "error: %v\n", err)
		return
	}

	if out := catalog.RenderResponse(entry, resp); out != "" {
		fmt.Fprintln(s.rl.Stdout(), out)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), "Commands are device shell commands, e.g.:")
	fmt.Fprintln(s.rl.Stdout(), "  show swver")
	fmt.Fprintln(s.rl.Stdout(), "  show uptime")
	fmt.Fprintln(s.rl.Stdout(), "  config channel 15")
	fmt.Fprintln(s.rl.Stdout(), "  ifup")
	fmt.Fprintln(s.rl.Stdout(), "  exit")
}

var _ io.Closer = (*Shell)(nil)
