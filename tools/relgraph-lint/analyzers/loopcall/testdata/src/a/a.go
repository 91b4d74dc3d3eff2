package a

import "context"

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Index interface {
	Mirror(ctx context.Context, id string) error
	MirrorBatch(ctx context.Context, ids []string) error
}

func bad(ctx context.Context, ids []string, e Embedder, idx Index) {
	for _, id := range ids {
		e.Embed(ctx, id)    // want "potential N\\+1: Embed called inside loop - use EmbedBatch"
		idx.Mirror(ctx, id) // want "potential N\\+1: Mirror called inside loop - use MirrorBatch"
	}
	for i := 0; i < len(ids); i++ {
		idx.Mirror(ctx, ids[i]) // want "potential N\\+1: Mirror called inside loop"
	}
}

func good(ctx context.Context, ids []string, e Embedder, idx Index) {
	e.EmbedBatch(ctx, ids)
	idx.MirrorBatch(ctx, ids)

	var deferred []func()
	for _, id := range ids {
		deferred = append(deferred, func() { idx.Mirror(ctx, id) })
	}
	_ = deferred
}
