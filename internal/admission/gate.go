package admission

import (
	"context"

	"go.uber.org/zap"

	"github.com/kubev2v/document-review/pkg/metrics"
)

// QueueDepth is a point in time sample of a work queue.
type QueueDepth struct {
	Visible    int64
	NotVisible int64
}

func (d QueueDepth) Total() int64 {
	return d.Visible + d.NotVisible
}

type DepthProvider interface {
	Depth(ctx context.Context, queueRef string) (QueueDepth, error)
}

type Decision struct {
	Limited bool
	Depth   int64
}

// Gate vetoes new jobs while the review queue holds at least threshold
// messages. A gate without a queue or with a non positive threshold admits
// everything.
type Gate struct {
	provider  DepthProvider
	queueRef  string
	threshold int
	log       *zap.SugaredLogger
}

func NewGate(provider DepthProvider, queueRef string, threshold int) *Gate {
	return &Gate{
		provider:  provider,
		queueRef:  queueRef,
		threshold: threshold,
		log:       zap.S().Named("admission"),
	}
}

func (g *Gate) Enabled() bool {
	return g != nil && g.provider != nil && g.queueRef != "" && g.threshold > 0
}

// Check samples the queue once. Provider errors admit the request.
func (g *Gate) Check(ctx context.Context) Decision {
	if !g.Enabled() {
		return Decision{}
	}

	depth, err := g.provider.Depth(ctx, g.queueRef)
	if err != nil {
		g.log.Warnw("failed to sample queue depth, admitting request", "queue", g.queueRef, "error", err)
		return Decision{}
	}

	total := depth.Total()
	if total < int64(g.threshold) {
		return Decision{Depth: total}
	}

	g.log.Infow("queue depth over threshold", "queue", g.queueRef, "depth", total, "threshold", g.threshold)
	metrics.IncreaseAdmissionRejectionsMetric(g.queueRef)
	return Decision{Limited: true, Depth: total}
}
