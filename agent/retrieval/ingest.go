package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/myproject/llm-apps/agent/embedding"
	"github.com/myproject/llm-apps/agent/vectorstore"
	"github.com/rs/zerolog/log"
)

var documentExts = map[string]bool{".txt": true, ".md": true}

type ChunkStore interface {
	Count(ctx context.Context) (int, error)
	Add(ctx context.Context, chunks []vectorstore.Chunk) error
}

// EnsureIndex fills an empty store from the documents under docsPath and
// returns how many chunks were added. A populated store is left untouched.
func EnsureIndex(ctx context.Context, store ChunkStore, embedder embedding.Embedder, docsPath string, splitter Splitter) (int, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int("chunks", n).Msg("vector index loaded")
		return 0, nil
	}
	info, err := os.Stat(docsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("docs_path", docsPath).Msg("documents path not found, retrieval index is empty")
			return 0, nil
		}
		return 0, fmt.Errorf("stat docs path: %w", err)
	}
	var files []string
	if info.IsDir() {
		files, err = listDocuments(docsPath)
		if err != nil {
			return 0, err
		}
	} else {
		files = []string{docsPath}
	}
	return Ingest(ctx, store, embedder, files, splitter)
}

func listDocuments(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if documentExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk docs: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Ingest splits, embeds and stores the given files.
func Ingest(ctx context.Context, store ChunkStore, embedder embedding.Embedder, files []string, splitter Splitter) (int, error) {
	var chunks []vectorstore.Chunk
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", path, err)
		}
		for i, text := range splitter.Split(string(data)) {
			chunks = append(chunks, vectorstore.Chunk{Source: filepath.Base(path), Seq: i, Content: text})
		}
	}
	if len(chunks) == 0 {
		log.Warn().Int("files", len(files)).Msg("no document text to index")
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	log.Info().Int("files", len(files)).Int("chunks", len(chunks)).Msg("embedding documents")
	vecs, err := embedder.BatchEmbedWithPool(ctx, embedder, texts)
	if err != nil {
		return 0, fmt.Errorf("embed documents: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}
	if err := store.Add(ctx, chunks); err != nil {
		return 0, err
	}
	log.Info().Int("chunks", len(chunks)).Msg("vector index built")
	return len(chunks), nil
}
