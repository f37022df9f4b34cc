// Package weftprom exposes weft pool statistics as Prometheus metrics.
package weftprom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weftlib/weft"
)

// Collector implements prometheus.Collector over a pool's Stats snapshot.
// Register one collector per pool; the namespace keeps multiple pools
// apart:
//
//	prometheus.MustRegister(weftprom.NewCollector(pool, "myapp"))
type Collector struct {
	pool *weft.Pool

	submitted  *prometheus.Desc
	completed  *prometheus.Desc
	dropped    *prometheus.Desc
	rejected   *prometheus.Desc
	stolen     *prometheus.Desc
	failed     *prometheus.Desc
	inFlight   *prometheus.Desc
	queueDepth *prometheus.Desc
	workers    *prometheus.Desc

	workerExecuted *prometheus.Desc
	workerStolen   *prometheus.Desc
	workerFailed   *prometheus.Desc
	workerDepth    *prometheus.Desc
}

// NewCollector creates a collector for the given pool. The namespace is
// prefixed to every metric name and may be empty.
func NewCollector(pool *weft.Pool, namespace string) *Collector {
	name := func(n string) string {
		return prometheus.BuildFQName(namespace, "weft", n)
	}

	return &Collector{
		pool: pool,

		submitted: prometheus.NewDesc(name("tasks_submitted_total"),
			"Total tasks accepted by the pool.", nil, nil),
		completed: prometheus.NewDesc(name("tasks_completed_total"),
			"Total tasks that finished execution.", nil, nil),
		dropped: prometheus.NewDesc(name("tasks_dropped_total"),
			"Tasks failed by an immediate shutdown before running.", nil, nil),
		rejected: prometheus.NewDesc(name("tasks_rejected_total"),
			"Submit calls refused by the submit limiter.", nil, nil),
		stolen: prometheus.NewDesc(name("tasks_stolen_total"),
			"Successful steals across all workers and helpers.", nil, nil),
		failed: prometheus.NewDesc(name("tasks_failed_total"),
			"Tasks that returned an error or panicked.", nil, nil),
		inFlight: prometheus.NewDesc(name("tasks_in_flight"),
			"Tasks currently queued or executing.", nil, nil),
		queueDepth: prometheus.NewDesc(name("queue_depth"),
			"Queued tasks across all deques and inboxes.", nil, nil),
		workers: prometheus.NewDesc(name("workers"),
			"Fixed worker count of the pool.", nil, nil),

		workerExecuted: prometheus.NewDesc(name("worker_tasks_executed_total"),
			"Tasks executed, per worker.", []string{"worker"}, nil),
		workerStolen: prometheus.NewDesc(name("worker_tasks_stolen_total"),
			"Tasks stolen from peers, per worker.", []string{"worker"}, nil),
		workerFailed: prometheus.NewDesc(name("worker_tasks_failed_total"),
			"Tasks that errored or panicked, per worker.", []string{"worker"}, nil),
		workerDepth: prometheus.NewDesc(name("worker_queue_depth"),
			"Current deque plus inbox length, per worker.", []string{"worker"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.submitted
	ch <- c.completed
	ch <- c.dropped
	ch <- c.rejected
	ch <- c.stolen
	ch <- c.failed
	ch <- c.inFlight
	ch <- c.queueDepth
	ch <- c.workers
	ch <- c.workerExecuted
	ch <- c.workerStolen
	ch <- c.workerFailed
	ch <- c.workerDepth
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	counter(c.submitted, s.Submitted)
	counter(c.completed, s.Completed)
	counter(c.dropped, s.Dropped)
	counter(c.rejected, s.Rejected)
	counter(c.stolen, s.Stolen)
	counter(c.failed, s.Failed)

	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(s.InFlight))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.TotalQueueDepth))
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(s.NumWorkers))

	for _, ws := range s.WorkerStats {
		id := strconv.Itoa(ws.WorkerID)
		ch <- prometheus.MustNewConstMetric(c.workerExecuted, prometheus.CounterValue, float64(ws.TasksExecuted), id)
		ch <- prometheus.MustNewConstMetric(c.workerStolen, prometheus.CounterValue, float64(ws.TasksStolen), id)
		ch <- prometheus.MustNewConstMetric(c.workerFailed, prometheus.CounterValue, float64(ws.TasksFailed), id)
		ch <- prometheus.MustNewConstMetric(c.workerDepth, prometheus.GaugeValue, float64(ws.QueueDepth), id)
	}
}
