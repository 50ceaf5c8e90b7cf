package verification

import (
	"context"

	"rental-marketplace/internal/models"
)

// BatchIndexer is implemented by indexers that accept many documents per call
type BatchIndexer interface {
	IndexProperties(ctx context.Context, summaries []models.PropertySummary) error
}

// ReindexResult reports a full reindex
type ReindexResult struct {
	IndexedCount int `json:"indexed_count"`
	ErrorCount   int `json:"error_count"`
}

// ReindexAll pushes the trust signals of every property to search, one
// batch at a time. A failed batch is counted and the walk continues.
func (p *Processor) ReindexAll(ctx context.Context) (*ReindexResult, error) {
	result := &ReindexResult{}
	batch := p.policy.batchSize()
	var afterID uint

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		props, err := p.properties.ListAfter(ctx, afterID, batch)
		if err != nil {
			return result, err
		}
		if len(props) == 0 {
			break
		}
		afterID = props[len(props)-1].ID

		summaries := make([]models.PropertySummary, 0, len(props))
		for i := range props {
			summaries = append(summaries, props[i].Summary())
		}
		if err := p.indexBatch(ctx, summaries); err != nil {
			p.log.WithError(err).WithField("after_id", afterID).Warn("Search: failed to index batch")
			result.ErrorCount += len(summaries)
			continue
		}
		result.IndexedCount += len(summaries)
	}

	p.log.WithField("indexed", result.IndexedCount).Info("Search: reindex completed")
	return result, nil
}

func (p *Processor) indexBatch(ctx context.Context, summaries []models.PropertySummary) error {
	if b, ok := p.indexer.(BatchIndexer); ok {
		return b.IndexProperties(ctx, summaries)
	}
	for _, s := range summaries {
		if err := p.indexer.IndexProperty(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
