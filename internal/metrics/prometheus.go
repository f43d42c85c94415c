package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const namespace = "oauth"

var (
	TokensCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_created_total",
		Help:      "Total number of access tokens created.",
	})
	TokensReusedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_reused_total",
		Help:      "Total number of token requests answered with an existing active token.",
	})
	TokensRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_revoked_total",
		Help:      "Total number of access tokens revoked individually.",
	})
	GrantsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grants_issued_total",
		Help:      "Total number of access grants issued.",
	})
	GrantsRedeemedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grants_redeemed_total",
		Help:      "Total number of access grants exchanged for a token.",
	})
	GrantRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grant_rejections_total",
		Help:      "Total number of rejected grant redemptions by reason.",
	}, []string{"reason"})
	ClientsRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clients_revoked_total",
		Help:      "Total number of clients revoked.",
	})
)

// Register adds the engine's collectors to reg. Collectors already registered
// are logged and skipped.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"tokens_created_total":   TokensCreatedTotal,
		"tokens_reused_total":    TokensReusedTotal,
		"tokens_revoked_total":   TokensRevokedTotal,
		"grants_issued_total":    GrantsIssuedTotal,
		"grants_redeemed_total":  GrantsRedeemedTotal,
		"grant_rejections_total": GrantRejectionsTotal,
		"clients_revoked_total":  ClientsRevokedTotal,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
	log.Debug().Msg("OAuth Prometheus metrics registered.")
}
