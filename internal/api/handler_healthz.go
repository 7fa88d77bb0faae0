package api

import "net/http"

// HandleHealthz serves GET /healthz without authentication. The body carries
// the binary version so probes can detect rollouts.
func HandleHealthz(version string) http.HandlerFunc {
	body := map[string]string{"status": "ok", "version": version}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, body)
	}
}
