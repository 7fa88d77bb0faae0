package api

import (
	"net/http"

	"github.com/Resinat/Paygate/internal/paywall"
)

// HandleReloadStaticPaywalls handles POST /api/v1/paywalls/static/actions/reload.
func HandleReloadStaticPaywalls(store *paywall.StaticStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := store.Reload(); err != nil {
			WriteError(w, http.StatusUnprocessableEntity, "RELOAD_FAILED", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]int{"count": store.Len()})
	})
}
