package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "wallet_broker"

// Service owns the prometheus registry and the broker's domain collectors.
// All recording methods are safe to call on a nil *Service.
type Service struct {
	Registry *prometheus.Registry

	requestsCreated  *prometheus.CounterVec
	requestsResolved *prometheus.CounterVec
	sessionsOpen     prometheus.Gauge
	nonceAllocated   *prometheus.CounterVec
	nonceReleased    *prometheus.CounterVec
	providerFailover *prometheus.CounterVec
	feeDegraded      *prometheus.CounterVec
	broadcasts       *prometheus.CounterVec
	watcherTerminal  *prometheus.CounterVec
	diagnostics      *prometheus.CounterVec
}

func New() (*Service, error) {
	s := &Service{
		Registry: prometheus.NewRegistry(),
		requestsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_created_total",
			Help:      "Pending requests created, by kind.",
		}, []string{"kind"}),
		requestsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_resolved_total",
			Help:      "Requests leaving the pending state, by kind and terminal status.",
		}, []string{"kind", "status"}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Currently open port sessions.",
		}),
		nonceAllocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonce_allocations_total",
			Help:      "Nonces handed out, by network.",
		}, []string{"network"}),
		nonceReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonce_releases_total",
			Help:      "Nonces rolled back after a definitive broadcast failure, by network.",
		}, []string{"network"}),
		providerFailover: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failovers_total",
			Help:      "RPC endpoints quarantined, by network.",
		}, []string{"network"}),
		feeDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_degraded_estimates_total",
			Help:      "Fee estimates served from cache after a provider failure, by network.",
		}, []string{"network"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast attempts, by network family and result.",
		}, []string{"family", "result"}),
		watcherTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_records_total",
			Help:      "Transaction records reaching a status, by status.",
		}, []string{"status"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_reported_total",
			Help:      "Unexpected errors reported to the diagnostics sink, by operation.",
		}, []string{"operation"}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.requestsCreated,
		s.requestsResolved,
		s.sessionsOpen,
		s.nonceAllocated,
		s.nonceReleased,
		s.providerFailover,
		s.feeDegraded,
		s.broadcasts,
		s.watcherTerminal,
		s.diagnostics,
	} {
		if err := s.Registry.Register(c); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Service) RequestCreated(kind string) {
	if s == nil {
		return
	}
	s.requestsCreated.WithLabelValues(kind).Inc()
}

func (s *Service) RequestResolved(kind string, status string) {
	if s == nil {
		return
	}
	s.requestsResolved.WithLabelValues(kind, status).Inc()
}

func (s *Service) SessionOpened() {
	if s == nil {
		return
	}
	s.sessionsOpen.Inc()
}

func (s *Service) SessionClosed() {
	if s == nil {
		return
	}
	s.sessionsOpen.Dec()
}

func (s *Service) NonceAllocated(network string) {
	if s == nil {
		return
	}
	s.nonceAllocated.WithLabelValues(network).Inc()
}

func (s *Service) NonceReleased(network string) {
	if s == nil {
		return
	}
	s.nonceReleased.WithLabelValues(network).Inc()
}

func (s *Service) ProviderFailover(network string) {
	if s == nil {
		return
	}
	s.providerFailover.WithLabelValues(network).Inc()
}

func (s *Service) FeeDegraded(network string) {
	if s == nil {
		return
	}
	s.feeDegraded.WithLabelValues(network).Inc()
}

func (s *Service) Broadcast(family string, result string) {
	if s == nil {
		return
	}
	s.broadcasts.WithLabelValues(family, result).Inc()
}

func (s *Service) WatcherStatus(status string) {
	if s == nil {
		return
	}
	s.watcherTerminal.WithLabelValues(status).Inc()
}

func (s *Service) DiagnosticReported(operation string) {
	if s == nil {
		return
	}
	s.diagnostics.WithLabelValues(operation).Inc()
}
