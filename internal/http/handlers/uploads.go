package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/partsplit-prereg/internal/storage/objects"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

// ObjectReader reads uploaded assets kept by the service itself.
type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// UploadsHandler serves uploads when the in-memory object store is used
// (local development). With S3, public URLs point at the bucket instead.
type UploadsHandler struct {
	objects ObjectReader
	logger  *logging.Logger
}

func NewUploadsHandler(objects ObjectReader, logger *logging.Logger) *UploadsHandler {
	if objects == nil {
		panic("handlers: object reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &UploadsHandler{objects: objects, logger: logger}
}

// GetUpload streams one stored object.
// GET /uploads/{key}
func (h *UploadsHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.objects.Get(r.Context(), chi.URLParam(r, "key"))
	if errors.Is(err, objects.ErrObjectNotFound) {
		jsonError(w, "not_found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to read upload", "error", err)
		jsonError(w, "internal", http.StatusInternalServerError)
		return
	}
	writeBlob(w, data, contentType, "public, max-age=3600")
}
