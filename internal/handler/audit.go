package handler

import (
	"net/http"
	"time"

	"github.com/wardenmcp/warden/internal/audit"
)

// AuditHandler serves read access to the audit trail.
type AuditHandler struct {
	log *audit.Logger
}

// NewAuditHandler creates an AuditHandler over the audit logger.
func NewAuditHandler(log *audit.Logger) *AuditHandler {
	return &AuditHandler{log: log}
}

// Search returns audit records matching the query filters, newest first.
// GET /api/v1/system/audit?principal=&server=&status=&since=&until=&limit=&offset=
func (h *AuditHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{
		Principal: queryString(r, "principal"),
		Server:    queryString(r, "server"),
		Status:    queryString(r, "status"),
		Limit:     clampInt(queryInt(r, "limit", 100), 1, 1000),
		Offset:    queryInt(r, "offset", 0),
	}

	for _, bound := range []struct {
		key  string
		dest *time.Time
	}{
		{"since", &q.Since},
		{"until", &q.Until},
	} {
		if raw := queryString(r, bound.key); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, bound.key+" must be RFC 3339")
				return
			}
			*bound.dest = t
		}
	}

	records, err := h.log.Search(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit search: "+err.Error())
		return
	}
	total, err := h.log.Count(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit count: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
		"total":   total,
		"limit":   q.Limit,
		"offset":  q.Offset,
	})
}
