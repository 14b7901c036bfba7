package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/siteprobe/siteprobe/internal/probe"
)

// MaintenanceModeKey is the state entry that puts the site in maintenance
const MaintenanceModeKey = "system.maintenance_mode"

// Maintenance answers 503 while the site is in maintenance mode. Requests for
// one of the exempt paths, or anything below one, are always served.
func Maintenance(state probe.StateStore, logger *slog.Logger, exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range exempt {
				if underPath(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			value, ok, err := state.State(r.Context(), MaintenanceModeKey)
			if err != nil {
				// Fail open when state is unreadable
				logger.Warn("Failed to read maintenance mode", "error", err)
			} else if ok && truthy(value) {
				w.Header().Set("Retry-After", "120")
				SendError(w, r, http.StatusServiceUnavailable, "MAINTENANCE", "Site is under maintenance", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// underPath reports whether p is path itself or a path below it
func underPath(p, path string) bool {
	rest, ok := strings.CutPrefix(p, path)
	return ok && (rest == "" || rest[0] == '/' || strings.HasSuffix(path, "/"))
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != "" && t != "0" && t != "false"
	}
	return false
}
