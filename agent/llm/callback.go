package llm

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// CallbackHandler receives generation events from a Handle.
type CallbackHandler interface {
	OnLLMStart(runID string)
	OnLLMNewToken(runID string, token string)
	OnLLMEnd(runID string)
	OnLLMError(runID string, err error)
}

// CallbackManager fans generation events out to its handlers.
type CallbackManager struct {
	mu       sync.RWMutex
	handlers []CallbackHandler
}

func NewCallbackManager(handlers ...CallbackHandler) *CallbackManager {
	m := &CallbackManager{}
	for _, h := range handlers {
		m.AddHandler(h)
	}
	return m
}

func (m *CallbackManager) AddHandler(h CallbackHandler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

func (m *CallbackManager) snapshot() []CallbackHandler {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CallbackHandler(nil), m.handlers...)
}

func (m *CallbackManager) OnLLMStart(runID string) {
	for _, h := range m.snapshot() {
		h.OnLLMStart(runID)
	}
}

func (m *CallbackManager) OnLLMNewToken(runID string, token string) {
	for _, h := range m.snapshot() {
		h.OnLLMNewToken(runID, token)
	}
}

func (m *CallbackManager) OnLLMEnd(runID string) {
	for _, h := range m.snapshot() {
		h.OnLLMEnd(runID)
	}
}

func (m *CallbackManager) OnLLMError(runID string, err error) {
	for _, h := range m.snapshot() {
		h.OnLLMError(runID, err)
	}
}

type silentKey struct{}

// WithoutCallbacks marks ctx so generations made with it emit no events.
func WithoutCallbacks(ctx context.Context) context.Context {
	return context.WithValue(ctx, silentKey{}, true)
}

func callbacksDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(silentKey{}).(bool)
	return v
}

// LogHandler logs run boundaries at debug level.
type LogHandler struct {
	mu     sync.Mutex
	tokens map[string]int
}

func NewLogHandler() *LogHandler {
	return &LogHandler{tokens: map[string]int{}}
}

func (l *LogHandler) OnLLMStart(runID string) {
	l.mu.Lock()
	l.tokens[runID] = 0
	l.mu.Unlock()
	log.Debug().Str("run", runID).Msg("llm run started")
}

func (l *LogHandler) OnLLMNewToken(runID string, _ string) {
	l.mu.Lock()
	l.tokens[runID]++
	l.mu.Unlock()
}

func (l *LogHandler) OnLLMEnd(runID string) {
	l.mu.Lock()
	n := l.tokens[runID]
	delete(l.tokens, runID)
	l.mu.Unlock()
	log.Debug().Str("run", runID).Int("tokens", n).Msg("llm run finished")
}

func (l *LogHandler) OnLLMError(runID string, err error) {
	l.mu.Lock()
	delete(l.tokens, runID)
	l.mu.Unlock()
	log.Debug().Str("run", runID).Err(err).Msg("llm run failed")
}
