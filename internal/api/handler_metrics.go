package api

import (
	"net/http"
	"time"

	"github.com/Resinat/Paygate/internal/eventlog"
	"github.com/Resinat/Paygate/internal/metrics"
	"github.com/Resinat/Paygate/internal/paywall"
)

type metricsResponse struct {
	Outcomes metrics.Snapshot       `json:"outcomes"`
	Loader   *paywall.LoaderStats   `json:"loader,omitempty"`
	EventLog *eventlog.ServiceStats `json:"event_log,omitempty"`
}

// HandleMetrics handles GET /api/v1/metrics.
func HandleMetrics(m *metrics.Manager, loader LoaderStatsProvider, eventLog *eventlog.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := metricsResponse{Outcomes: m.Snapshot()}
		if loader != nil {
			stats := loader.Stats()
			resp.Loader = &stats
		}
		if eventLog != nil {
			stats := eventLog.Stats()
			resp.EventLog = &stats
		}
		WriteJSON(w, http.StatusOK, resp)
	})
}

// HandleRealtimeMetrics handles GET /api/v1/metrics/realtime.
// Query params: from, to (RFC3339Nano). Defaults to the last 5 minutes.
func HandleRealtimeMetrics(m *metrics.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromNs, toNs, ok := parseTimeRangeOrWriteInvalid(w, r)
		if !ok {
			return
		}
		to := time.Now()
		if toNs > 0 {
			to = time.Unix(0, toNs)
		}
		from := to.Add(-5 * time.Minute)
		if fromNs > 0 {
			from = time.Unix(0, fromNs)
		}
		items := m.Ring().Query(from, to)
		if items == nil {
			items = []metrics.RealtimeSample{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	})
}
