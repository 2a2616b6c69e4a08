package infra

import (
	"context"
	"time"

	"kakizome/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats conta decisões por classe/operação/resultado.
// O endereço não entra como label (cardinalidade).
type PrometheusStats struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStats(reg prometheus.Registerer) (*PrometheusStats, error) {
	s := &PrometheusStats{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kakizome",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by operation class, operation and outcome.",
		}, []string{"class", "operation", "decision"}),
	}
	if reg != nil {
		if err := reg.Register(s.decisions); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	decision := "denied"
	if ev.Allowed {
		decision = "allowed"
	}
	s.decisions.WithLabelValues(string(ev.Key.Class), ev.Operation, decision).Inc()
	return nil
}

// Decisions expõe o vetor para testes e dashboards locais.
func (s *PrometheusStats) Decisions() *prometheus.CounterVec { return s.decisions }

// SlotWaitObserver mede quanto cada request esperou por uma vaga de concorrência.
type SlotWaitObserver struct {
	wait *prometheus.HistogramVec
}

func NewSlotWaitObserver(reg prometheus.Registerer) (*SlotWaitObserver, error) {
	o := &SlotWaitObserver{
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kakizome",
			Subsystem: "concurrency",
			Name:      "slot_wait_seconds",
			Help:      "Time spent waiting for a concurrency slot.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"outcome"}),
	}
	if reg != nil {
		if err := reg.Register(o.wait); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Observe tem a assinatura de ConcurrencyOptions.Observe.
func (o *SlotWaitObserver) Observe(waited time.Duration, ok bool) {
	outcome := "rejected"
	if ok {
		outcome = "acquired"
	}
	o.wait.WithLabelValues(outcome).Observe(waited.Seconds())
}
