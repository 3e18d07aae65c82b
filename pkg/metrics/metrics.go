package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	documentReview = "document_review"

	// Job metrics
	jobSubmissionsTotal  = "job_submissions_total"
	admissionRejections  = "admission_rejections_total"
	jobsFinishedTotal    = "jobs_finished_total"
	itemEvaluationsTotal = "item_evaluations_total"
	evaluatorRetries     = "evaluator_retries_total"
	itemDurationSeconds  = "item_duration_seconds"

	// Batch metrics
	ambiguityItemsTotal    = "ambiguity_items_total"
	feedbackSummariesTotal = "feedback_summaries_total"

	// Queue metrics
	queueMessagesTotal = "queue_messages_total"

	// Labels
	outcomeLabel = "outcome"
	statusLabel  = "status"
	queueLabel   = "queue"
)

/**
* Metrics definition
**/
var jobSubmissionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentReview,
		Name:      jobSubmissionsTotal,
		Help:      "number of review job submissions by outcome",
	},
	[]string{outcomeLabel},
)

var admissionRejectionsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentReview,
		Name:      admissionRejections,
		Help:      "number of submissions rejected because the review queue was too deep",
	},
	[]string{queueLabel},
)

var jobsFinishedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentReview,
		Name:      jobsFinishedTotal,
		Help:      "number of review jobs reaching a terminal status",
	},
	[]string{statusLabel},
)

var itemEvaluationsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentReview,
		Name:      itemEvaluationsTotal,
		Help:      "number of checklist item evaluations by result status",
	},
	[]string{statusLabel},
)

var evaluatorRetriesMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: documentReview,
		Name:      evaluatorRetries,
		Help:      "number of evaluator calls retried after a transient failure",
	},
)

var itemDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: documentReview,
		Name:      itemDurationSeconds,
		Help:      "time spent evaluating one checklist item",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
)

var ambiguityItemsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentReview,
		Name:      ambiguityItemsTotal,
		Help:      "number of checklist items checked for ambiguity by outcome",
	},
	[]string{outcomeLabel},
)

var feedbackSummariesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentReview,
		Name:      feedbackSummariesTotal,
		Help:      "number of feedback summarizations by outcome",
	},
	[]string{outcomeLabel},
)

var queueMessagesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentReview,
		Name:      queueMessagesTotal,
		Help:      "number of review queue messages handled by outcome",
	},
	[]string{outcomeLabel},
)

func IncreaseJobSubmissionsMetric(outcome string) {
	jobSubmissionsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseAdmissionRejectionsMetric(queue string) {
	admissionRejectionsMetric.With(prometheus.Labels{queueLabel: queue}).Inc()
}

func IncreaseJobsFinishedMetric(status string) {
	jobsFinishedTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseItemEvaluationsMetric(status string) {
	itemEvaluationsTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseEvaluatorRetriesMetric() {
	evaluatorRetriesMetric.Inc()
}

func ObserveItemDuration(d time.Duration) {
	itemDurationMetric.Observe(d.Seconds())
}

func IncreaseAmbiguityItemsMetric(outcome string) {
	ambiguityItemsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseFeedbackSummariesMetric(outcome string) {
	feedbackSummariesTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseQueueMessagesMetric(outcome string) {
	queueMessagesTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobSubmissionsTotalMetric)
	prometheus.MustRegister(admissionRejectionsMetric)
	prometheus.MustRegister(jobsFinishedTotalMetric)
	prometheus.MustRegister(itemEvaluationsTotalMetric)
	prometheus.MustRegister(evaluatorRetriesMetric)
	prometheus.MustRegister(itemDurationMetric)
	prometheus.MustRegister(ambiguityItemsTotalMetric)
	prometheus.MustRegister(feedbackSummariesTotalMetric)
	prometheus.MustRegister(queueMessagesTotalMetric)
}
