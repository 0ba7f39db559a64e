package llm

import (
	"io"
	"strings"
	"sync"
)

const DefaultSinkBuffer = 256

type sinkEventKind int

const (
	sinkStart sinkEventKind = iota
	sinkToken
	sinkEnd
	sinkFlush
)

type sinkEvent struct {
	kind  sinkEventKind
	runID string
	token string
	ack   chan int
}

// StreamSink renders streamed tokens to a writer from its own worker
// goroutine. Call Start before the first generation and Close on shutdown;
// Close drains everything already queued.
type StreamSink struct {
	out    io.Writer
	events chan sinkEvent

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func NewStreamSink(out io.Writer, buffer int) *StreamSink {
	if out == nil {
		out = io.Discard
	}
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	return &StreamSink{
		out:    out,
		events: make(chan sinkEvent, buffer),
	}
}

// Start launches the render worker. Calling it twice is a no-op.
func (s *StreamSink) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consume()
	}()
}

// Close stops intake, renders what is queued and joins the worker.
func (s *StreamSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	close(s.events)
	s.mu.Unlock()
	if !started {
		// nobody will drain the queue; render it inline
		s.consume()
		return
	}
	s.wg.Wait()
}

// Sync blocks until every event queued before the call has been rendered and
// returns the number of tokens rendered since the previous Sync.
func (s *StreamSink) Sync() int {
	ack := make(chan int, 1)
	if !s.enqueue(sinkEvent{kind: sinkFlush, ack: ack}) {
		return 0
	}
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return 0
	}
	return <-ack
}

func (s *StreamSink) OnLLMStart(runID string) {
	s.enqueue(sinkEvent{kind: sinkStart, runID: runID})
}

func (s *StreamSink) OnLLMNewToken(runID string, token string) {
	if token == "" {
		return
	}
	s.enqueue(sinkEvent{kind: sinkToken, runID: runID, token: token})
}

func (s *StreamSink) OnLLMEnd(runID string) {
	s.enqueue(sinkEvent{kind: sinkEnd, runID: runID})
}

func (s *StreamSink) OnLLMError(runID string, _ error) {
	s.enqueue(sinkEvent{kind: sinkEnd, runID: runID})
}

func (s *StreamSink) enqueue(ev sinkEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.events <- ev
	return true
}

func (s *StreamSink) consume() {
	rendered := 0
	open := map[string]string{} // run id -> last token written
	for ev := range s.events {
		switch ev.kind {
		case sinkStart:
			open[ev.runID] = ""
		case sinkToken:
			_, _ = io.WriteString(s.out, ev.token)
			open[ev.runID] = ev.token
			rendered++
		case sinkEnd:
			last, ok := open[ev.runID]
			delete(open, ev.runID)
			if ok && last != "" && !strings.HasSuffix(last, "\n") {
				_, _ = io.WriteString(s.out, "\n")
			}
		case sinkFlush:
			ev.ack <- rendered
			rendered = 0
		}
	}
}
