package buildin

import (
	"context"
	"fmt"
	"strings"

	"github.com/myproject/llm-apps/agent/llm"
	"github.com/myproject/llm-apps/agent/retrieval"
	"github.com/myproject/llm-apps/agent/tools"
)

const (
	qaSystemPrompt = "Answer the question using only the numbered context passages. If the context does not contain the answer, say you do not know. Answer in the language of the question."
	noDocsAnswer   = "No relevant documents were found for this question."
)

type retrievalQAInput struct {
	Question string `json:"question" jsonschema_description:"The question to answer from the document collection."`
}

// DocumentRetriever is satisfied by *retrieval.Retriever.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Document, error)
}

func NewRetrievalQATool(model llm.Generator, retriever DocumentRetriever) tools.Tool {
	return tools.New(
		"retrieval_qa",
		func(ctx context.Context, args string) (string, error) {
			var input retrievalQAInput
			if err := tools.DecodeArgs(args, &input); err != nil {
				return "", err
			}
			if strings.TrimSpace(input.Question) == "" {
				return "", fmt.Errorf("question is required")
			}
			docs, err := retriever.Retrieve(ctx, input.Question)
			if err != nil {
				return "", fmt.Errorf("retrieve: %w", err)
			}
			if len(docs) == 0 {
				return noDocsAnswer, nil
			}
			answer, err := model.Generate(llm.WithoutCallbacks(ctx), qaSystemPrompt, buildQAPrompt(input.Question, docs))
			if err != nil {
				return "", err
			}
			return answer + "\n\nSources: " + strings.Join(sources(docs), ", "), nil
		},
		tools.WithDescription("Answer questions about the local document collection (the indexed books and articles). Use it for anything about their authors, characters, events or quotations."),
		tools.WithParameters(tools.GenerateSchema[retrievalQAInput]()),
	)
}

func buildQAPrompt(question string, docs []retrieval.Document) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] (%s) %s\n\n", i+1, d.Source, d.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func sources(docs []retrieval.Document) []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range docs {
		if seen[d.Source] {
			continue
		}
		seen[d.Source] = true
		out = append(out, d.Source)
	}
	return out
}
