package web

import (
	"net/http"
	"strconv"

	"github.com/JonMunkholm/custupload/internal/core"
)

// handleListCustomers returns one page of customers ordered by creation.
func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "page_size", core.DefaultPageSize)

	result, err := core.ListCustomerPage(r.Context(), s.customers, page, pageSize)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
