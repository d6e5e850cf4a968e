package pipeline

import (
	"context"
	"fmt"

	"github.com/exzackley/fondogis/internal/domain"
)

// MultiLoader fans a batch out to several loaders in order. The batch counts
// as loaded only when every loader accepted it; offsets are not committed
// otherwise, so a partially loaded batch is redelivered and reports are
// overwritten by id.
type MultiLoader []BatchLoader

func (m MultiLoader) LoadBatch(ctx context.Context, reports []domain.Report) error {
	for i, l := range m {
		if err := l.LoadBatch(ctx, reports); err != nil {
			return fmt.Errorf("loader %d: %w", i, err)
		}
	}
	return nil
}
