package extractor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

const classifierCollection = "intent_classifier"

// Classifier is a semantic-similarity cache over previously labeled
// utterances. A hit short-circuits the model-based type classification.
type Classifier struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32
}

// NewClassifier opens a persistent classifier cache under dir.
// The embedder is bridged from Eino's [][]float64 to chromem-go's []float32.
func NewClassifier(ctx context.Context, dir string, embedder embedding.Embedder, threshold float32) (*Classifier, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "classifier"), false)
	if err != nil {
		return nil, fmt.Errorf("open classifier cache: %w", err)
	}

	col, err := db.GetOrCreateCollection(classifierCollection, nil, bridgeEmbedder(ctx, embedder))
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}

	return &Classifier{db: db, collection: col, threshold: threshold}, nil
}

// Classify returns the intent-type label of the closest prior utterance,
// or ok=false when nothing is similar enough.
func (c *Classifier) Classify(ctx context.Context, utterance string) (label string, ok bool, err error) {
	if c.collection.Count() == 0 {
		return "", false, nil
	}

	results, err := c.collection.Query(ctx, utterance, 1, nil, nil)
	if err != nil {
		return "", false, fmt.Errorf("classifier query: %w", err)
	}
	if len(results) == 0 || results[0].Similarity < c.threshold {
		return "", false, nil
	}
	return results[0].Metadata["label"], true, nil
}

// Learn records an utterance with its colon-joined intent-type label so
// future similar utterances can skip the model call.
func (c *Classifier) Learn(ctx context.Context, utterance, label string) error {
	id := "cls_" + uuid.NewString()[:8]
	meta := map[string]string{"label": label}
	if err := c.collection.Add(ctx, []string{id}, nil, []map[string]string{meta}, []string{utterance}); err != nil {
		return fmt.Errorf("classifier learn: %w", err)
	}
	return nil
}

// Count returns the number of labeled utterances in the cache.
func (c *Classifier) Count() int {
	return c.collection.Count()
}

// bridgeEmbedder converts an Eino Embedder ([][]float64) to a chromem-go EmbeddingFunc ([]float32).
func bridgeEmbedder(ctx context.Context, embedder embedding.Embedder) chromem.EmbeddingFunc {
	return func(embedCtx context.Context, text string) ([]float32, error) {
		if embedCtx == context.Background() {
			embedCtx = ctx
		}
		vectors, err := embedder.EmbedStrings(embedCtx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("embed text: %w", err)
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			return nil, fmt.Errorf("embed text: empty result")
		}

		f64 := vectors[0]
		f32 := make([]float32, len(f64))
		for i, v := range f64 {
			f32[i] = float32(v)
		}
		return f32, nil
	}
}
