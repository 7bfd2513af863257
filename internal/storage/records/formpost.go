package records

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

// FormPostConfig configures a FormPostDispatcher.
type FormPostConfig struct {
	// URL is the form endpoint, e.g. a hosted form's formResponse URL.
	URL string
	// Field is the form field the contact is written to.
	Field   string
	Timeout time.Duration
}

// FormPostDispatcher posts the contact to a generic form endpoint. The
// endpoint's response is opaque: it is drained and discarded, so a dispatch
// only fails when the request cannot be sent.
type FormPostDispatcher struct {
	client *http.Client
	cfg    FormPostConfig
	logger *logging.Logger
}

// NewFormPostDispatcher creates a dispatcher. client may be nil.
func NewFormPostDispatcher(client *http.Client, cfg FormPostConfig, logger *logging.Logger) *FormPostDispatcher {
	if strings.TrimSpace(cfg.URL) == "" {
		panic("records: form post url required")
	}
	if cfg.Field == "" {
		cfg.Field = "email"
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FormPostDispatcher{client: client, cfg: cfg, logger: logger}
}

// Dispatch sends the contact as a multipart form. The status code is not inspected.
func (d *FormPostDispatcher) Dispatch(ctx context.Context, rec registration.Record) error {
	contact := rec.Contact()
	if contact == "" {
		return errors.New("records: record has no contact")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField(d.cfg.Field, contact); err != nil {
		return fmt.Errorf("records: build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("records: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, &body)
	if err != nil {
		return fmt.Errorf("records: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("records: form post failed: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	d.logger.Debug("registration dispatched to form endpoint", "record_id", rec.ID, "kind", rec.Kind)
	return nil
}

var _ registration.FormDispatcher = (*FormPostDispatcher)(nil)
