package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	KeysProvisionedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_keys_provisioned_total",
			Help: "Key provisioning attempts by result.",
		},
		[]string{"result"},
	)

	ConversationsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_conversations_resolved_total",
			Help: "Conversation resolutions by outcome (existing, created, raced).",
		},
		[]string{"result"},
	)

	MessagesStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_messages_stored_total",
			Help: "Total number of stored messages by envelope form.",
		},
		[]string{"form"},
	)

	MessagesCiphertextBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dm_messages_ciphertext_bytes",
			Help:    "Ciphertext sizes for stored messages.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		},
		[]string{"form"},
	)

	HistoryFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_history_fetched_total",
			Help: "Total number of history page fetches.",
		},
	)

	ReceiptsMarkedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_receipts_marked_total",
			Help: "Messages flipped to seen, by scope (conversation, message).",
		},
		[]string{"scope"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_events_published_total",
			Help: "Events handed to the bus by type.",
		},
		[]string{"type"},
	)

	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Bearer authentication attempts by method and result.",
		},
		[]string{"method", "result"},
	)
)

// MustRegister registers every collector with the default registry, tagging
// each series with the service name.
func MustRegister(serviceName string) {
	MustRegisterWith(prometheus.DefaultRegisterer, serviceName)
}

func MustRegisterWith(reg prometheus.Registerer, serviceName string) {
	prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, reg).MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		KeysProvisionedTotal,
		ConversationsResolvedTotal,
		MessagesStoredTotal,
		MessagesCiphertextBytes,
		HistoryFetchedTotal,
		ReceiptsMarkedTotal,
		EventsPublishedTotal,
		AuthAttemptsTotal,
	)
}
