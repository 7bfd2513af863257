package handlers

import (
	"net/http"
	"strconv"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/internal/storage/records"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

// AdminRegistrationsHandler lists stored registrations for operators.
type AdminRegistrationsHandler struct {
	lister records.Lister
	logger *logging.Logger
}

func NewAdminRegistrationsHandler(lister records.Lister, logger *logging.Logger) *AdminRegistrationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminRegistrationsHandler{lister: lister, logger: logger}
}

type listRegistrationsResponse struct {
	Registrations []registration.Record `json:"registrations"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

// List returns registrations, newest first.
// GET /admin/registrations?type=&limit=&offset=
func (h *AdminRegistrationsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		jsonError(w, "listing_unavailable", http.StatusNotImplemented)
		return
	}
	q := r.URL.Query()
	filter := records.ListFilter{Kind: registration.Kind(q.Get("type"))}
	switch filter.Kind {
	case "", registration.KindEarlyAccess, registration.KindDemoRequest:
	default:
		jsonError(w, "invalid_type", http.StatusBadRequest)
		return
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		jsonError(w, "invalid_limit", http.StatusBadRequest)
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		jsonError(w, "invalid_offset", http.StatusBadRequest)
		return
	}

	list, err := h.lister.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list registrations", "error", err)
		jsonError(w, "internal", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []registration.Record{}
	}
	writeJSON(w, http.StatusOK, listRegistrationsResponse{Registrations: list, Limit: filter.Limit, Offset: filter.Offset})
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
