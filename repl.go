package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/myproject/llm-apps/agent"
	"github.com/rs/zerolog/log"
)

const (
	promptText        = "> "
	exitCommand       = "exit"
	emptyInputMessage = "Input cannot be empty. Please try again."
)

type invoker interface {
	Invoke(ctx context.Context, input string) (agent.Reply, error)
}

// syncer reports how many tokens were streamed since its last call.
type syncer interface {
	Sync() int
}

// readLines feeds the lines of in to the returned channel until end of input
// or ctx is done, then closes it. A read error is delivered before the close.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSuffix(scanner.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()
	return lines, readErr
}

// runLoop reads one line at a time from in and forwards it to app until
// "exit", end of input or ctx is done.
func runLoop(ctx context.Context, app invoker, sink syncer, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines, readErr := readLines(ctx, in)

	for {
		fmt.Fprint(out, promptText)
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			select {
			case err := <-readErr:
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
			default:
			}
			return nil
		}

		switch line {
		case exitCommand:
			return nil
		case "":
			fmt.Fprintln(out, emptyInputMessage)
			continue
		}

		reply, err := app.Invoke(ctx, line)
		streamed := sink.Sync()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, agent.ErrEmptyInput) {
				fmt.Fprintln(out, emptyInputMessage)
				continue
			}
			log.Error().Err(err).Msg("request failed")
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if !reply.Streamed || streamed == 0 {
			fmt.Fprintln(out, reply.Text)
		}
	}
}
