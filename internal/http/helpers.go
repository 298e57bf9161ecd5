package http

import (
	"net/http"
	"strconv"
	"strings"

	"famiglia/internal/core"
)

// userID extracts the authenticated user from the X-User-ID header set by
// the gateway in front of this service.
func userID(r *http.Request) (int64, error) {
	v := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if v == "" {
		return 0, core.Permission("missing X-User-ID header")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Permission("invalid X-User-ID header")
	}
	return id, nil
}

// pathID parses a positive integer path segment.
func pathID(r *http.Request, name string) (int64, error) {
	v := r.PathValue(name)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Validationf("invalid %s", name)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter, returning def when
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func statusCacheKey(familyID int64) string {
	return "statuses:" + strconv.FormatInt(familyID, 10)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
