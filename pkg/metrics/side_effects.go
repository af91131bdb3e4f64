package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Side effects that run after a commit and never fail the request
const (
	ComponentBroadcast = "broadcast"
	ComponentPush      = "push"
)

var (
	SideEffectFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_side_effect_failures_total",
		Help: "Total number of swallowed post-commit side-effect failures",
	}, []string{"component"})

	SideEffectLastErrorTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_side_effect_last_error_timestamp_seconds",
		Help: "Unix time of the last swallowed side-effect failure",
	}, []string{"component"})
)

// LastError is the most recent failure of a component
type LastError struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Count   int64     `json:"count"`
}

var (
	lastErrorsMu sync.RWMutex
	lastErrors   = map[string]LastError{}
)

// RecordSideEffectFailure counts a swallowed failure and remembers it for /health
func RecordSideEffectFailure(component string, err error) {
	now := time.Now().UTC()
	SideEffectFailuresTotal.WithLabelValues(component).Inc()
	SideEffectLastErrorTimestamp.WithLabelValues(component).Set(float64(now.Unix()))

	lastErrorsMu.Lock()
	prev := lastErrors[component]
	lastErrors[component] = LastError{Message: err.Error(), At: now, Count: prev.Count + 1}
	lastErrorsMu.Unlock()
}

// SideEffectErrors returns a copy of the last failure per component
func SideEffectErrors() map[string]LastError {
	lastErrorsMu.RLock()
	defer lastErrorsMu.RUnlock()

	out := make(map[string]LastError, len(lastErrors))
	for k, v := range lastErrors {
		out[k] = v
	}
	return out
}

func chatCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		ChatMessageCreatedTotal,
		ChatMessageDeliveryDuration,
		ChatMessagesMarkedReadTotal,
		ChatBroadcastTotal,
		ChatBroadcastReorderedTotal,
		ChatBroadcastSeqGapTotal,
		ChatBroadcastPanicTotal,
		ChatClientMessageDroppedTotal,
		ChatRoomsActive,
		ChatRedisPublishTotal,
		ChatRedisSubscriptionActive,
		ChatWebSocketConnectionTotal,
		ChatWebSocketConnections,
		ChatWebSocketMessagesTotal,
		ChatWebSocketErrorsTotal,
		ChatPushNotificationsTotal,
		MediaUploadsTotal,
		MediaRejectionsTotal,
		MediaUploadBytes,
		SideEffectFailuresTotal,
		SideEffectLastErrorTimestamp,
	}
}
