package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SharesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "godrop_shares_created_total",
		Help: "Shares created.",
	})
	GrantsMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "godrop_grants_minted_total",
		Help: "Per-recipient grants minted.",
	})
	AccessResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "godrop_access_results_total",
		Help: "Access resolutions by result.",
	}, []string{"result"})
	Retirements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "godrop_retirements_total",
		Help: "Retirement attempts by outcome.",
	}, []string{"outcome"})
	DeleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "godrop_delete_failures_total",
		Help: "Failed storage deletes of completed files.",
	})
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "godrop_notification_failures_total",
		Help: "Recipient notifications that could not be delivered.",
	})
)
