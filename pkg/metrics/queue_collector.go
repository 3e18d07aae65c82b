package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DepthSampler reports how many messages of a queue are waiting and how many
// are being worked on.
type DepthSampler interface {
	Sample(ctx context.Context) (visible int64, notVisible int64, err error)
}

type queueDepthCollector struct {
	queue    string
	sampler  DepthSampler
	visible  *prometheus.Desc
	inFlight *prometheus.Desc
}

func newQueueDepthCollector(queue string, sampler DepthSampler) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_queue_%s", documentReview, name)
	}

	return &queueDepthCollector{
		queue:   queue,
		sampler: sampler,
		visible: prometheus.NewDesc(
			fqName("visible_messages"),
			"Messages waiting to be received.",
			nil,
			prometheus.Labels{queueLabel: queue},
		),
		inFlight: prometheus.NewDesc(
			fqName("in_flight_messages"),
			"Messages received but not yet acknowledged.",
			nil,
			prometheus.Labels{queueLabel: queue},
		),
	}
}

// RegisterQueueDepthCollector samples the queue on every scrape.
func RegisterQueueDepthCollector(queue string, sampler DepthSampler) error {
	return prometheus.Register(newQueueDepthCollector(queue, sampler))
}

func (c *queueDepthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.visible
	ch <- c.inFlight
}

// Collect implements Collector.
func (c *queueDepthCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	visible, notVisible, err := c.sampler.Sample(ctx)
	if err != nil {
		zap.S().Named("queue_collector").Errorf("failed to sample queue %s: %s", c.queue, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.visible, prometheus.GaugeValue, float64(visible))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(notVisible))
}
