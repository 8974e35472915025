package infra

import (
	"context"
	"strconv"

	"proxy-transport/transport/proxy/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore conta envios por resultado e status.
// Target não vira label (cardinalidade).
type PrometheusStatsStore struct {
	dispatches *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer, namespace string) (*PrometheusStatsStore, error) {
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_total",
		Help:      "Dispatch attempts by result and remote status (0 when no response).",
	}, []string{"result", "status"})

	if reg != nil {
		if err := reg.Register(dispatches); err != nil {
			return nil, err
		}
	}
	return &PrometheusStatsStore{dispatches: dispatches}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.dispatches.WithLabelValues(ev.Result, strconv.Itoa(ev.StatusCode)).Inc()
	return nil
}

// Counter expõe o contador (usado em testes e no relay-agent).
func (s *PrometheusStatsStore) Counter(result string, status int) prometheus.Counter {
	return s.dispatches.WithLabelValues(result, strconv.Itoa(status))
}

// StateFunc retorna (emVoo, capacidade, segundosDeCooldownRestantes).
type StateFunc func() (inFlight, capacity int, cooldownSeconds float64)

type stateCollector struct {
	fetch StateFunc

	inFlight *prometheus.Desc
	capacity *prometheus.Desc
	cooldown *prometheus.Desc
}

// NewStateCollector expõe o estado do limitador e do gate como gauges.
func NewStateCollector(namespace string, fetch StateFunc) prometheus.Collector {
	return &stateCollector{
		fetch: fetch,
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "in_flight"),
			"Dispatches currently in flight",
			nil, nil,
		),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "capacity"),
			"Maximum concurrent dispatches",
			nil, nil,
		),
		cooldown: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cooldown_remaining_seconds"),
			"Seconds until the rate limit cooldown expires (0 when unlocked)",
			nil, nil,
		),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inFlight
	ch <- c.capacity
	ch <- c.cooldown
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	inFlight, capacity, cooldown := c.fetch()
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(inFlight))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(capacity))
	ch <- prometheus.MustNewConstMetric(c.cooldown, prometheus.GaugeValue, cooldown)
}
