package llm

import (
	"bytes"
	"context"
	"sync"
	"testing"
)

// lockedBuffer lets the test read what the worker goroutine wrote.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStreamSinkRendersTokensInOrder(t *testing.T) {
	out := &lockedBuffer{}
	sink := NewStreamSink(out, 4)
	sink.Start()
	defer sink.Close()

	sink.OnLLMStart("r1")
	for _, tok := range []string{"Hel", "lo", ", ", "world"} {
		sink.OnLLMNewToken("r1", tok)
	}
	sink.OnLLMEnd("r1")

	if n := sink.Sync(); n != 4 {
		t.Fatalf("expected 4 rendered tokens, got %d", n)
	}
	if got := out.String(); got != "Hello, world\n" {
		t.Fatalf("unexpected output: %q", got)
	}
	if n := sink.Sync(); n != 0 {
		t.Fatalf("expected counter reset after sync, got %d", n)
	}
}

func TestStreamSinkNoExtraNewline(t *testing.T) {
	out := &lockedBuffer{}
	sink := NewStreamSink(out, 0)
	sink.Start()

	sink.OnLLMStart("r1")
	sink.OnLLMNewToken("r1", "done\n")
	sink.OnLLMEnd("r1")
	sink.OnLLMStart("r2")
	sink.OnLLMEnd("r2")
	sink.Close()

	if got := out.String(); got != "done\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestStreamSinkCloseDrainsQueue(t *testing.T) {
	out := &lockedBuffer{}
	sink := NewStreamSink(out, 1024)
	sink.Start()

	sink.OnLLMStart("r1")
	for i := 0; i < 500; i++ {
		sink.OnLLMNewToken("r1", "x")
	}
	sink.Close()

	if got := len(out.String()); got != 500 {
		t.Fatalf("expected all 500 tokens rendered before close returned, got %d", got)
	}
	// closed sinks ignore events and never block
	sink.OnLLMNewToken("r1", "late")
	sink.Close()
	if n := sink.Sync(); n != 0 {
		t.Fatalf("sync after close should return 0, got %d", n)
	}
}

func TestCallbackManagerFanOut(t *testing.T) {
	a := &lockedBuffer{}
	b := &lockedBuffer{}
	sa := NewStreamSink(a, 0)
	sb := NewStreamSink(b, 0)
	sa.Start()
	sb.Start()

	m := NewCallbackManager(sa, nil, sb)
	m.OnLLMStart("r")
	m.OnLLMNewToken("r", "hi")
	m.OnLLMEnd("r")
	sa.Close()
	sb.Close()

	if a.String() != "hi\n" || b.String() != "hi\n" {
		t.Fatalf("handlers did not both receive tokens: %q %q", a.String(), b.String())
	}
}

func TestWithoutCallbacks(t *testing.T) {
	ctx := context.Background()
	if callbacksDisabled(ctx) {
		t.Fatal("plain context should not disable callbacks")
	}
	if !callbacksDisabled(WithoutCallbacks(ctx)) {
		t.Fatal("WithoutCallbacks should disable callbacks")
	}
}
