package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		usersRegisteredTotal,
		telegramUpdatesTotal,
		telegramRateLimitTriggeredTotal,
		broadcastDeliveriesTotal,
		referralAccrualsTotal,
		walletListenersActive,
	)
}

var (
	usersRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of new users registered.",
		},
	)

	telegramUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_received_total",
			Help: "Counts incoming updates by kind (command/callback/text/photo/document).",
		},
		[]string{"kind"},
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	// status: sent|failed|skipped
	broadcastDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Broadcast deliveries by status.",
		},
		[]string{"status"},
	)

	referralAccrualsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_accruals_total",
			Help: "Referral rewards credited to referrers.",
		},
	)

	walletListenersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallet_listeners_active",
			Help: "Wallet-connect listeners currently waiting for a wallet.",
		},
	)
)

func IncUsersRegistered() {
	usersRegisteredTotal.Inc()
}

func IncTelegramUpdate(kind string) {
	telegramUpdatesTotal.WithLabelValues(norm(kind)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncBroadcastDelivery(status string) {
	broadcastDeliveriesTotal.WithLabelValues(norm(status)).Inc()
}

func IncReferralAccrual() {
	referralAccrualsTotal.Inc()
}

func SetWalletListeners(n int) {
	walletListenersActive.Set(float64(n))
}
