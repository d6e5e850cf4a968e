package pipeline

import (
	"context"
	"log/slog"

	"github.com/exzackley/fondogis/internal/domain"
	"github.com/exzackley/fondogis/internal/observability"
)

// Reconciler implements Transformer by decoding each message as a
// reconciliation unit and running it through the engine.
type Reconciler struct {
	engine  *domain.Engine
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewTransformer creates a Reconciler around engine.
func NewTransformer(engine *domain.Engine, metrics *observability.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		engine:  engine,
		metrics: metrics,
		logger:  logger,
	}
}

func (t *Reconciler) Transform(ctx context.Context, raw domain.RawEvent) (domain.Report, error) {
	unit, err := domain.DecodeUnit(raw.Value)
	if err != nil {
		return domain.Report{}, err
	}

	report, err := t.engine.Reconcile(ctx, unit)
	if err != nil {
		return domain.Report{}, err
	}

	t.observe(report)
	return report, nil
}

func (t *Reconciler) observe(report domain.Report) {
	for _, r := range report.Comparison.Results {
		t.metrics.Comparisons.WithLabelValues(r.Classification).Inc()
	}
	absent := report.A.AbsentSamples + report.B.AbsentSamples
	unresolved := len(report.A.Unresolved) + len(report.B.Unresolved)
	t.metrics.AbsentSamples.Add(float64(absent))
	t.metrics.UnresolvedLabels.Add(float64(unresolved))

	if unresolved > 0 {
		t.logger.Warn("unit has unresolved time labels",
			"region", report.Region,
			"indicator", report.Indicator,
			"source_a", report.A.Unresolved,
			"source_b", report.B.Unresolved,
		)
	}
}
