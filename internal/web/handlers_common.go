package web

// This file contains shared request parsing helpers used across handlers.

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/treedata/internal/core"
)

// parseID parses a positive integer URL parameter.
func parseID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %s %q is not a valid ID", core.ErrInvalidRequest, name, raw)
	}
	return id, nil
}

// boolQuery reads a boolean query parameter. Missing or unparseable values
// return defaultVal.
func boolQuery(r *http.Request, name string, defaultVal bool) bool {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
