package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// lengthEmbedder maps each text to a one-element vector holding its length.
type lengthEmbedder struct {
	calls atomic.Int32
	fail  string
}

func (l *lengthEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := l.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (l *lengthEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	l.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == l.fail {
			return nil, errors.New("boom")
		}
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (l *lengthEmbedder) GetModelName() string { return "length" }
func (l *lengthEmbedder) GetDimensions() int   { return 1 }
func (l *lengthEmbedder) GetModelID() string   { return "length" }
func (l *lengthEmbedder) BatchEmbedWithPool(ctx context.Context, model Embedder, texts []string) ([][]float32, error) {
	return model.BatchEmbed(ctx, texts)
}

func TestPoolerKeepsInputOrder(t *testing.T) {
	pooler, err := NewPooler(3, 2)
	if err != nil {
		t.Fatalf("NewPooler: %v", err)
	}
	defer pooler.Release()

	texts := make([]string, 9)
	for i := range texts {
		texts[i] = strings.Repeat("a", i+1)
	}
	model := &lengthEmbedder{}
	vecs, err := pooler.BatchEmbedWithPool(context.Background(), model, texts)
	if err != nil {
		t.Fatalf("BatchEmbedWithPool: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if int(v[0]) != i+1 {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
	if got := model.calls.Load(); got != 5 {
		t.Fatalf("expected 5 batches, got %d", got)
	}
}

func TestPoolerPropagatesBatchError(t *testing.T) {
	pooler, err := NewPooler(2, 1)
	if err != nil {
		t.Fatalf("NewPooler: %v", err)
	}
	defer pooler.Release()

	_, err = pooler.BatchEmbedWithPool(context.Background(), &lengthEmbedder{fail: "bad"}, []string{"ok", "bad", "fine"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected batch error, got %v", err)
	}
}

func TestOpenAIEmbedderBatch(t *testing.T) {
	var gotModel atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel.Store(req.Model)
		items := make([]string, 0, len(req.Input))
		// answer in reverse to check that indices are honoured
		for i := len(req.Input) - 1; i >= 0; i-- {
			items = append(items, fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%d,0.5]}`, i, len(req.Input[i])))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"object":"list","model":%q,"data":[%s],"usage":{"prompt_tokens":1,"total_tokens":1}}`, req.Model, strings.Join(items, ","))
	}))
	defer srv.Close()

	e, err := NewEmbedder(Config{BaseURL: srv.URL, ModelName: "models/gte-large-zh"}, nil)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if e.GetDimensions() != 0 {
		t.Fatalf("dimensions should be unknown before the first call")
	}
	vecs, err := e.BatchEmbedWithPool(context.Background(), e, []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("BatchEmbedWithPool: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 3 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
	if e.GetDimensions() != 2 {
		t.Fatalf("expected dimensions 2, got %d", e.GetDimensions())
	}
	if gotModel.Load() != "models/gte-large-zh" {
		t.Fatalf("unexpected model sent: %v", gotModel.Load())
	}
	if e.GetModelID() != "models/gte-large-zh" {
		t.Fatalf("model id should default to the model name")
	}
}

func TestOpenAIEmbedderSplitsBatchesWithoutPool(t *testing.T) {
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sizes = append(sizes, len(req.Input))
		items := make([]string, 0, len(req.Input))
		for i, in := range req.Input {
			items = append(items, fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%d]}`, i, len(in)))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"object":"list","model":"m","data":[%s],"usage":{"prompt_tokens":1,"total_tokens":1}}`, strings.Join(items, ","))
	}))
	defer srv.Close()

	e, err := NewEmbedder(Config{BaseURL: srv.URL, ModelName: "m", BatchSize: 2}, nil)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	vecs, err := e.BatchEmbedWithPool(context.Background(), e, []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("BatchEmbedWithPool: %v", err)
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("unexpected request sizes: %v", sizes)
	}
	for i, v := range vecs {
		if int(v[0]) != i+1 {
			t.Fatalf("vector %d out of order: %v", i, vecs)
		}
	}
}

func TestNewEmbedderRequiresModel(t *testing.T) {
	if _, err := NewEmbedder(Config{}, nil); err == nil {
		t.Fatal("expected error without model name")
	}
}
