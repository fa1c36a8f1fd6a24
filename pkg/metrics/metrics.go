package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TaskMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomodo_task_mutations_total",
			Help: "Task store mutations by operation and result",
		},
		[]string{"op", "result"},
	)
	PomodorosCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pomodo_pomodoros_completed_total",
			Help: "Focus intervals run to completion",
		},
	)
	RemindersScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pomodo_reminders_scheduled_total",
			Help: "Reminders handed to the scheduler",
		},
	)
	RemindersFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomodo_reminders_fired_total",
			Help: "Reminders delivered, by result",
		},
		[]string{"result"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomodo_http_requests_total",
			Help: "HTTP requests served by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(TaskMutations)
	prometheus.MustRegister(PomodorosCompleted)
	prometheus.MustRegister(RemindersScheduled)
	prometheus.MustRegister(RemindersFired)
	prometheus.MustRegister(HTTPRequests)
}

// ObserveMutation counts one store mutation.
func ObserveMutation(op string, err error) {
	TaskMutations.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveReminder counts one fired reminder.
func ObserveReminder(err error) {
	RemindersFired.WithLabelValues(result(err)).Inc()
}
