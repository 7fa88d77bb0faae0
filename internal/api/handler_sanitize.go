package api

import (
	"net/http"
	"sort"

	"github.com/Resinat/Paygate/internal/tracking"
)

type sanitizeRequest struct {
	Params        map[string]any `json:"params"`
	AllowReserved bool           `json:"allow_reserved"`
}

type droppedParam struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

type sanitizeResponse struct {
	Params  map[string]any `json:"params"`
	Dropped []droppedParam `json:"dropped"`
}

// HandleSanitize handles POST /api/v1/parameters/sanitize.
func HandleSanitize() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body sanitizeRequest
		if !decodeBodyOrWriteInvalid(w, r, &body) {
			return
		}
		dropped := []droppedParam{}
		params := tracking.SanitizeWithDrops(body.Params, body.AllowReserved, func(key string, reason tracking.DropReason) {
			dropped = append(dropped, droppedParam{Key: key, Reason: string(reason)})
		})
		sort.Slice(dropped, func(i, j int) bool { return dropped[i].Key < dropped[j].Key })
		WriteJSON(w, http.StatusOK, sanitizeResponse{Params: params, Dropped: dropped})
	})
}
