// Package metrics exposes Prometheus collectors for HTTP traffic and lecture activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lecturelink"

// Metrics holds the registered collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	pollsCreated    prometheus.Counter
	pollsActivated  prometheus.Counter
	votes           *prometheus.CounterVec
	questionsPosted prometheus.Counter
	commentsPosted  prometheus.Counter
	acknowledged    prometheus.Counter
	reactionToggles *prometheus.CounterVec
	purgeJobs       *prometheus.CounterVec
}

// New creates a registry with process/Go collectors and the application collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		pollsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "polls_created_total", Help: "Polls created.",
		}),
		pollsActivated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "polls_activated_total", Help: "Polls activated.",
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_votes_total",
			Help: "Poll votes by outcome (accepted, rejected).",
		}, []string{"outcome"}),
		questionsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "questions_posted_total", Help: "Questions posted.",
		}),
		commentsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "comments_posted_total", Help: "Comments posted.",
		}),
		acknowledged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "questions_acknowledged_total", Help: "Question acknowledgements.",
		}),
		reactionToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reaction_toggles_total",
			Help: "Reaction toggles by item type.",
		}, []string{"type"}),
		purgeJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "purge_jobs_total",
			Help: "Lecture purge jobs by outcome (done, failed).",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.httpRequests, m.httpDuration,
		m.pollsCreated, m.pollsActivated, m.votes,
		m.questionsPosted, m.commentsPosted, m.acknowledged,
		m.reactionToggles, m.purgeJobs,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency. Unmatched routes are grouped under "unmatched".
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) PollCreated() {
	if m != nil {
		m.pollsCreated.Inc()
	}
}

func (m *Metrics) PollActivated() {
	if m != nil {
		m.pollsActivated.Inc()
	}
}

// Vote records a vote outcome; accepted is false for any rejected vote.
func (m *Metrics) Vote(accepted bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	m.votes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QuestionPosted() {
	if m != nil {
		m.questionsPosted.Inc()
	}
}

func (m *Metrics) CommentPosted() {
	if m != nil {
		m.commentsPosted.Inc()
	}
}

func (m *Metrics) Acknowledged() {
	if m != nil {
		m.acknowledged.Inc()
	}
}

func (m *Metrics) ReactionToggled(itemType string) {
	if m != nil {
		m.reactionToggles.WithLabelValues(itemType).Inc()
	}
}

// PurgeJob records a finished purge job.
func (m *Metrics) PurgeJob(ok bool) {
	if m == nil {
		return
	}
	outcome := "done"
	if !ok {
		outcome = "failed"
	}
	m.purgeJobs.WithLabelValues(outcome).Inc()
}
