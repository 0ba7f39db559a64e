package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/myproject/llm-apps/agent"
)

type recordingApp struct {
	inputs []string
	reply  func(input string) (string, error)
}

func (r *recordingApp) Invoke(_ context.Context, input string) (agent.Reply, error) {
	r.inputs = append(r.inputs, input)
	if r.reply == nil {
		return agent.Reply{Text: "reply to " + input, Streamed: true}, nil
	}
	text, err := r.reply(input)
	return agent.Reply{Text: text, Streamed: true}, err
}

type fixedSync struct{ n int }

func (f fixedSync) Sync() int { return f.n }

func TestRunLoopExitStopsWithoutInvoking(t *testing.T) {
	app := &recordingApp{}
	var out bytes.Buffer
	if err := runLoop(context.Background(), app, fixedSync{}, strings.NewReader("exit\nhello\n"), &out); err != nil {
		t.Fatal(err)
	}
	if len(app.inputs) != 0 {
		t.Fatalf("orchestrator invoked: %v", app.inputs)
	}
	if out.String() != promptText {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunLoopRejectsEmptyInput(t *testing.T) {
	app := &recordingApp{}
	var out bytes.Buffer
	if err := runLoop(context.Background(), app, fixedSync{}, strings.NewReader("\nhello\nexit\n"), &out); err != nil {
		t.Fatal(err)
	}
	if strings.Count(out.String(), emptyInputMessage) != 1 {
		t.Fatalf("missing rejection message: %q", out.String())
	}
	if len(app.inputs) != 1 || app.inputs[0] != "hello" {
		t.Fatalf("unexpected inputs: %v", app.inputs)
	}
}

func TestRunLoopForwardsVerbatimOnce(t *testing.T) {
	app := &recordingApp{}
	var out bytes.Buffer
	in := "  鲁迅的原名是什么？  \r\nexit now\n"
	if err := runLoop(context.Background(), app, fixedSync{}, strings.NewReader(in), &out); err != nil {
		t.Fatal(err)
	}
	if len(app.inputs) != 2 || app.inputs[0] != "  鲁迅的原名是什么？  " || app.inputs[1] != "exit now" {
		t.Fatalf("unexpected inputs: %q", app.inputs)
	}
	if !strings.Contains(out.String(), "reply to exit now\n") {
		t.Fatalf("reply not printed: %q", out.String())
	}
}

func TestRunLoopSkipsReplyAlreadyStreamed(t *testing.T) {
	app := &recordingApp{}
	var out bytes.Buffer
	if err := runLoop(context.Background(), app, fixedSync{n: 12}, strings.NewReader("hi\n"), &out); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "reply to hi") {
		t.Fatalf("streamed reply printed twice: %q", out.String())
	}
	if len(app.inputs) != 1 {
		t.Fatalf("unexpected inputs: %v", app.inputs)
	}
}

func TestRunLoopPrintsUnstreamedReplyAfterPreamble(t *testing.T) {
	app := &directApp{text: "direct answer"}
	var out bytes.Buffer
	if err := runLoop(context.Background(), app, fixedSync{n: 5}, strings.NewReader("hi\n"), &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "direct answer\n") {
		t.Fatalf("return-direct answer dropped: %q", out.String())
	}
}

type directApp struct{ text string }

func (d *directApp) Invoke(context.Context, string) (agent.Reply, error) {
	return agent.Reply{Text: d.text}, nil
}

func TestReadLinesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines, _ := readLines(ctx, endlessLines{})
	if got := <-lines; got != "again" {
		t.Fatalf("unexpected first line %q", got)
	}
	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("reader kept running after cancel")
		}
	}
}

// endlessLines never reaches end of input.
type endlessLines struct{}

func (endlessLines) Read(p []byte) (int, error) {
	return copy(p, "again\n"), nil
}

func TestRunLoopReportsErrorsAndContinues(t *testing.T) {
	app := &recordingApp{reply: func(input string) (string, error) {
		switch input {
		case "fail":
			return "", agent.ErrIterationLimit
		case " ":
			return "", agent.ErrEmptyInput
		}
		return "ok", nil
	}}
	var out bytes.Buffer
	if err := runLoop(context.Background(), app, fixedSync{}, strings.NewReader("fail\n \nfine\n"), &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, "Error: "+agent.ErrIterationLimit.Error()) {
		t.Fatalf("error not reported: %q", got)
	}
	if !strings.Contains(got, emptyInputMessage) || !strings.HasSuffix(got, "ok\n"+promptText+"\n") {
		t.Fatalf("loop did not continue: %q", got)
	}
	if len(app.inputs) != 3 {
		t.Fatalf("unexpected inputs: %q", app.inputs)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("tty gone") }

func TestRunLoopReturnsReadError(t *testing.T) {
	err := runLoop(context.Background(), &recordingApp{}, fixedSync{}, failingReader{}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "tty gone") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runLoop(ctx, &recordingApp{}, fixedSync{}, pr, io.Discard) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}
