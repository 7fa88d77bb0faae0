package api

import (
	"net/http"
	"strings"

	"github.com/Resinat/Paygate/internal/eventlog"
)

// HandleListEvents handles GET /api/v1/events.
// Query params: name, from, to (RFC3339Nano), limit, offset.
func HandleListEvents(repo *eventlog.Repo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		from, to, ok := parseTimeRangeOrWriteInvalid(w, r)
		if !ok {
			return
		}

		rows, err := repo.List(eventlog.ListFilter{
			Name:   strings.TrimSpace(r.URL.Query().Get("name")),
			After:  from,
			Before: to,
			Limit:  pg.Limit,
			Offset: pg.Offset,
		})
		if err != nil {
			writeInternal(w, err)
			return
		}
		if rows == nil {
			rows = []eventlog.EventSummary{}
		}
		WriteJSON(w, http.StatusOK, PageResponse[eventlog.EventSummary]{
			Items:  rows,
			Limit:  pg.Limit,
			Offset: pg.Offset,
		})
	})
}

// HandleListResponseLoads handles GET /api/v1/response-loads.
// Query params: paywall_id, limit. Items are oldest first.
func HandleListResponseLoads(repo *eventlog.Repo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		if pg.Offset != 0 {
			writeInvalidArgument(w, "offset: not supported for response loads")
			return
		}
		rows, err := repo.ListLoads(eventlog.LoadFilter{
			PaywallID: strings.TrimSpace(r.URL.Query().Get("paywall_id")),
			Limit:     pg.Limit,
		})
		if err != nil {
			writeInternal(w, err)
			return
		}
		if rows == nil {
			rows = []eventlog.LoadRow{}
		}
		WriteJSON(w, http.StatusOK, PageResponse[eventlog.LoadRow]{
			Items: rows,
			Limit: pg.Limit,
		})
	})
}
