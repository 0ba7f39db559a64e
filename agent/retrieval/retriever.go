// Package retrieval builds the document index and runs the two-stage
// recall (embeddings) then precision (reranker) lookup used by retrieval QA.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/myproject/llm-apps/agent/rerank"
	"github.com/myproject/llm-apps/agent/vectorstore"
	"github.com/rs/zerolog/log"
)

type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]vectorstore.Match, error)
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Document is a retrieved chunk with the score of the stage that ranked it
// last.
type Document struct {
	Source  string
	Seq     int
	Content string
	Score   float64
}

type Retriever struct {
	Store      Searcher
	Embedder   QueryEmbedder
	Reranker   rerank.Reranker
	Stage1TopK int
	Stage2TopK int
}

// Retrieve returns up to Stage2TopK documents for query. Stage 1 recalls
// Stage1TopK candidates by cosine similarity; stage 2 reorders them with the
// reranker. A failing reranker degrades to the stage 1 order.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	if r.Store == nil || r.Embedder == nil {
		return nil, errors.New("retriever is not configured")
	}
	vec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	candidates, err := r.Store.Search(ctx, vec, r.Stage1TopK)
	if err != nil {
		return nil, fmt.Errorf("stage 1 search: %w", err)
	}
	log.Debug().Int("candidates", len(candidates)).Str("query", query).Msg("retrieval stage 1")
	if len(candidates) == 0 {
		return nil, nil
	}

	keep := r.Stage2TopK
	if keep <= 0 || keep > len(candidates) {
		keep = len(candidates)
	}

	if r.Reranker != nil {
		texts := make([]string, len(candidates))
		for i, c := range candidates {
			texts[i] = c.Content
		}
		results, err := r.Reranker.Rerank(ctx, query, texts, keep)
		if err == nil {
			docs := make([]Document, 0, len(results))
			for _, res := range results {
				c := candidates[res.Index]
				docs = append(docs, Document{Source: c.Source, Seq: c.Seq, Content: c.Content, Score: res.Score})
			}
			log.Debug().Int("kept", len(docs)).Msg("retrieval stage 2")
			return docs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("rerank failed, using embedding order")
	}

	docs := make([]Document, 0, keep)
	for _, c := range candidates[:keep] {
		docs = append(docs, Document{Source: c.Source, Seq: c.Seq, Content: c.Content, Score: c.Score})
	}
	return docs, nil
}
