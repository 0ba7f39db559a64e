// Package rerank scores query/document pairs with a cross-encoder served
// behind a /rerank endpoint (llama.cpp server, text-embeddings-inference,
// Jina-compatible gateways).
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Result is one scored document; Index points into the input slice.
type Result struct {
	Index int
	Score float64
}

type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error)
}

// HTTPReranker calls <BaseURL>/rerank.
type HTTPReranker struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  *http.Client
}

func NewHTTPReranker(baseURL, model, apiKey string) *HTTPReranker {
	return &HTTPReranker{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Rerank returns at most topN results sorted by descending score. topN <= 0
// keeps every document.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}
	payload, err := json.Marshal(map[string]any{
		"model":     r.Model,
		"query":     query,
		"documents": documents,
		"top_n":     topN,
	})
	if err != nil {
		return nil, fmt.Errorf("encode rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank http status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return parseResults(body, len(documents), topN)
}

// parseResults accepts both the {"results":[...]} envelope and TEI's bare
// array, with either relevance_score or score.
func parseResults(body []byte, docs, topN int) ([]Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("rerank response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	items := root.Get("results")
	if !items.Exists() && root.IsArray() {
		items = root
	}
	if !items.IsArray() {
		return nil, errors.New("rerank response has no results")
	}
	var out []Result
	var bad error
	items.ForEach(func(_, item gjson.Result) bool {
		idx := item.Get("index")
		if !idx.Exists() {
			bad = errors.New("rerank result without index")
			return false
		}
		score := item.Get("relevance_score")
		if !score.Exists() {
			score = item.Get("score")
		}
		i := int(idx.Int())
		if i < 0 || i >= docs {
			bad = fmt.Errorf("rerank index %d out of range", i)
			return false
		}
		out = append(out, Result{Index: i, Score: score.Float()})
		return true
	})
	if bad != nil {
		return nil, bad
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}
