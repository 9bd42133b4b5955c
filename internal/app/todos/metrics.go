package todos

import (
	"errors"

	"github.com/todo-1m/todosync/internal/platform/metrics"
)

type Metrics struct {
	Mutations   *metrics.CounterVec
	LastVersion *metrics.Gauge
}

func NewMetrics(reg *metrics.Registry) *Metrics {
	m := &Metrics{
		Mutations: metrics.NewCounterVec(metrics.Opts{
			Name: "todosync_mutations_total",
			Help: "Todo mutations by operation and result.",
		}, []string{"operation", "result"}),
		LastVersion: metrics.NewGauge(metrics.Opts{
			Name: "todosync_changelog_last_version",
			Help: "Highest changelog version committed by this process.",
		}),
	}
	reg.MustRegister(m.Mutations, m.LastVersion)
	return m
}

func (m *Metrics) observeMutation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTodoNotFound):
		result = "not_found"
	case errors.Is(err, ErrStorage):
		result = "storage_error"
	default:
		result = "error"
	}
	m.Mutations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) observeVersion(version int64) {
	if m == nil {
		return
	}
	m.LastVersion.SetMax(float64(version))
}
