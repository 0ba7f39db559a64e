package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Pooler splits large inputs into batches and embeds them on an ants pool.
type Pooler struct {
	pool      *ants.Pool
	batchSize int
}

func NewPooler(workers, batchSize int) (*Pooler, error) {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	return &Pooler{pool: pool, batchSize: batchSize}, nil
}

// Release frees the pool's workers.
func (p *Pooler) Release() {
	p.pool.Release()
}

// BatchEmbedWithPool returns vectors in input order. The first failing batch
// aborts the call.
func (p *Pooler) BatchEmbedWithPool(ctx context.Context, model Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		lo, hi := start, end
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vecs, err := model.BatchEmbed(ctx, texts[lo:hi])
			if err != nil {
				fail(fmt.Errorf("embed batch %d-%d: %w", lo, hi, err))
				return
			}
			copy(out[lo:hi], vecs)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embed batch: %w", err))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
