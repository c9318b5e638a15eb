package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики сервиса.
type Metrics struct {
	TasksSubmitted prometheus.Counter
	TasksRejected  *prometheus.CounterVec
	TasksFinished  *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	SubOps         *prometheus.CounterVec
	ActiveTasks    prometheus.Gauge
	QueueDepth     prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg.
// Для тестов передаётся prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		TasksSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "snapclone_tasks_submitted_total",
			Help: "Tasks accepted by the task manager",
		}),
		TasksRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapclone_tasks_rejected_total",
			Help: "Task submissions rejected by the task manager",
		}, []string{"reason"}),
		TasksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapclone_task_runs_total",
			Help: "Finished task runs by outcome",
		}, []string{"mode", "outcome"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "snapclone_step_duration_seconds",
			Help:    "Duration of a single step execution",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"step", "result"}),
		SubOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapclone_fanout_subops_total",
			Help: "Fan-out sub-operations by operation and result",
		}, []string{"op", "result"}),
		ActiveTasks: f.NewGauge(prometheus.GaugeOpts{
			Name: "snapclone_active_tasks",
			Help: "Tasks queued or running in this process",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "snapclone_queue_depth",
			Help: "Tasks waiting in the intake queue",
		}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveSubOp учитывает подоперацию fan-out.
func (m *Metrics) ObserveSubOp(op string, err error) {
	if m == nil {
		return
	}
	m.SubOps.WithLabelValues(op, result(err)).Inc()
}

// ObserveStep учитывает выполнение шага.
func (m *Metrics) ObserveStep(step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step, result(err)).Observe(d.Seconds())
}

// ObserveRun учитывает завершение прогона задачи.
func (m *Metrics) ObserveRun(mode, outcome string) {
	if m == nil {
		return
	}
	m.TasksFinished.WithLabelValues(mode, outcome).Inc()
}

// ObserveSubmit учитывает принятую или отклонённую заявку.
func (m *Metrics) ObserveSubmit(rejectReason string) {
	if m == nil {
		return
	}
	if rejectReason == "" {
		m.TasksSubmitted.Inc()
		return
	}
	m.TasksRejected.WithLabelValues(rejectReason).Inc()
}

// SetActive выставляет число активных задач.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveTasks.Set(float64(n))
}

// SetQueueDepth выставляет глубину очереди.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
