package server

import (
	"net/http"
	"os"
	"strconv"
)

// parseIntQuery reads an integer query parameter, returning def when
// absent or malformed.
func parseIntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getEnvInt reads an integer from the environment, returning def when
// unset or malformed.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
