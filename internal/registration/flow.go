package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

var flowTracer = otel.Tracer("partsplit.internal.registration")

const defaultStepTimeout = 20 * time.Second

// Option customizes a Flow.
type Option func(*Flow)

// WithLogger sets the flow logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithListener registers the receiver of terminal notifications.
func WithListener(l Listener) Option {
	return func(f *Flow) { f.listener = l }
}

// WithRecorder wires submission metrics.
func WithRecorder(r Recorder) Option {
	return func(f *Flow) {
		if r != nil {
			f.recorder = r
		}
	}
}

// WithTimeouts bounds the upload and persist calls. Zero keeps the default.
func WithTimeouts(upload, persist time.Duration) Option {
	return func(f *Flow) {
		if upload > 0 {
			f.uploadTimeout = upload
		}
		if persist > 0 {
			f.persistTimeout = persist
		}
	}
}

// WithOrphanCompensation deletes an uploaded asset when persisting its record fails.
// Off by default: orphaned objects are accepted.
func WithOrphanCompensation(enabled bool) Option {
	return func(f *Flow) { f.compensate = enabled }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// WithKeyFunc overrides object key generation.
func WithKeyFunc(fn func(time.Time, AssetFile) string) Option {
	return func(f *Flow) {
		if fn != nil {
			f.newKey = fn
		}
	}
}

// Flow owns one visitor's registration form: its fields, the selected asset
// and the submission state machine. Only one submission may be in flight.
type Flow struct {
	variant  Variant
	collab   Collaborators
	listener Listener
	recorder Recorder
	logger   *logging.Logger

	uploadTimeout  time.Duration
	persistTimeout time.Duration
	compensate     bool
	now            func() time.Time
	newKey         func(time.Time, AssetFile) string

	mu        sync.Mutex
	phase     Phase
	failure   error
	contact   string
	mode      ContactMode
	consent   bool
	asset     *UploadedAsset
	submitted string
	closed    bool
}

// NewFlow creates a flow in the Idle phase.
func NewFlow(variant Variant, collab Collaborators, opts ...Option) (*Flow, error) {
	if err := collab.validate(variant); err != nil {
		return nil, err
	}
	if collab.Previews == nil {
		collab.Previews = NewMemoryPreviews()
	}
	f := &Flow{
		variant:        variant,
		collab:         collab,
		recorder:       nopRecorder{},
		logger:         logging.Default(),
		uploadTimeout:  defaultStepTimeout,
		persistTimeout: defaultStepTimeout,
		now:            time.Now,
		newKey:         NewObjectKey,
		phase:          PhaseIdle,
		mode:           variant.DefaultMode(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Variant returns the configuration the flow was built with.
func (f *Flow) Variant() Variant {
	return f.variant
}

// State returns a snapshot of the flow.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := State{
		Variant:          f.variant.Name,
		Phase:            f.phase,
		Contact:          f.contact,
		Mode:             f.mode,
		ConsentGiven:     f.consent,
		SubmittedContact: f.submitted,
	}
	if f.mode == ContactPhone && f.contact != "" {
		st.ContactDisplay = FormatPhoneDisplay(f.contact)
	}
	if f.failure != nil {
		st.FailureReason = ReasonCode(f.failure)
	}
	if f.asset != nil {
		st.Asset = &AssetState{
			Name:        f.asset.File.Name,
			ContentType: f.asset.File.ContentType,
			Size:        len(f.asset.File.Data),
			PreviewRef:  f.asset.PreviewRef,
		}
	}
	return st
}

// Submit validates in and, if valid, uploads the asset and persists the record.
// Validation errors return synchronously and leave the phase untouched.
func (f *Flow) Submit(ctx context.Context, in Input) (*Outcome, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFlowClosed
	}
	if f.phase == PhaseSubmitting {
		f.mu.Unlock()
		f.recorder.ObserveSubmission(string(f.variant.Kind), "in_progress")
		return nil, ErrAlreadyInProgress
	}

	prev := f.phase
	f.phase = PhaseValidating

	mode := in.Mode
	if mode == "" {
		mode = f.variant.DefaultMode()
	}
	f.mode = mode
	f.consent = in.ConsentGiven
	if mode == ContactPhone {
		f.contact = LimitPhoneDigits(in.Contact)
	} else {
		f.contact = strings.TrimSpace(in.Contact)
	}

	var asset *AssetFile
	if f.variant.RequiresAsset {
		switch {
		case in.Asset != nil:
			file := prepareAsset(*in.Asset)
			asset = &file
		case f.asset != nil:
			file := f.asset.File
			asset = &file
		}
	}

	contact := NormalizeContact(in.Contact, mode)
	if err := f.validate(in, mode, contact, asset); err != nil {
		f.phase = prev
		f.mu.Unlock()
		f.recorder.ObserveSubmission(string(f.variant.Kind), "invalid")
		return nil, err
	}

	f.phase = PhaseSubmitting
	f.failure = nil
	f.mu.Unlock()

	outcome, err := f.send(ctx, contact, mode, asset)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		f.logger.Debug("submission finished after flow close; result ignored", "variant", f.variant.Name, "error", err)
		return outcome, err
	}
	if err != nil {
		f.phase = PhaseFailed
		f.failure = err
		f.mu.Unlock()

		f.recorder.ObserveSubmission(string(f.variant.Kind), ReasonCode(err))
		f.logger.Warn("registration submission failed", "variant", f.variant.Name, "reason", ReasonCode(err), "error", err)
		if f.listener != nil {
			f.listener.OnError(ctx, err)
		}
		return nil, err
	}

	f.phase = PhaseSuccess
	f.submitted = contact
	f.contact = ""
	f.consent = false
	released := f.asset
	f.asset = nil
	f.mu.Unlock()

	if released != nil {
		f.releasePreview(ctx, released.PreviewRef)
	}

	f.recorder.ObserveSubmission(string(f.variant.Kind), "success")
	f.logger.Info("registration submitted",
		"variant", f.variant.Name,
		"kind", outcome.Record.Kind,
		"record_id", outcome.Record.ID,
		"object_key", outcome.AssetKey,
		"confirmed", outcome.Confirmed,
	)
	if f.listener != nil {
		f.listener.OnSuccess(ctx, *outcome)
	}
	return outcome, nil
}

// validate applies the ordered checks; the first failure wins.
func (f *Flow) validate(in Input, mode ContactMode, contact string, asset *AssetFile) error {
	if strings.TrimSpace(in.Contact) == "" {
		return ErrMissingContact
	}
	if !f.variant.Allows(mode) || !ValidateContact(contact, mode) {
		return ErrInvalidContact
	}
	if f.variant.RequiresConsent && !in.ConsentGiven {
		return ErrConsentRequired
	}
	if f.variant.RequiresAsset {
		if asset == nil || len(asset.Data) == 0 || !IsAcceptedAssetType(asset.ContentType) {
			return ErrInvalidAsset
		}
	}
	return nil
}

// send runs upload then persist. Each step is bounded by its own timeout and
// a failure aborts the remainder.
func (f *Flow) send(ctx context.Context, contact string, mode ContactMode, asset *AssetFile) (*Outcome, error) {
	ctx, span := flowTracer.Start(ctx, "registration.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("registration.variant", f.variant.Name),
		attribute.String("registration.kind", string(f.variant.Kind)),
		attribute.Bool("registration.has_asset", asset != nil),
	)

	rec := Record{
		ID:        uuid.NewString(),
		Kind:      f.variant.Kind,
		CreatedAt: f.now().UTC(),
	}
	if mode == ContactPhone {
		rec.Phone = contact
	} else {
		rec.Email = contact
	}

	var key string
	if asset != nil {
		key = f.newKey(f.now(), *asset)
		start := time.Now()
		uploadCtx, cancel := context.WithTimeout(ctx, f.uploadTimeout)
		err := f.collab.Objects.Put(uploadCtx, key, asset.Data, normalizeContentType(asset.ContentType))
		cancel()
		f.recorder.ObserveStepLatency("upload", time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upload failed")
			return nil, &SubmissionError{Reason: ErrUploadFailed, Err: err}
		}
		rec.ImageURL = f.collab.Objects.PublicURL(key)
		span.SetAttributes(attribute.String("registration.object_key", key))
	}

	confirmed := f.collab.Records != nil
	start := time.Now()
	persistCtx, cancel := context.WithTimeout(ctx, f.persistTimeout)
	var err error
	if confirmed {
		err = f.collab.Records.Insert(persistCtx, rec)
	} else {
		err = f.collab.Dispatcher.Dispatch(persistCtx, rec)
	}
	cancel()
	f.recorder.ObserveStepLatency("persist", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		if key != "" {
			f.handleOrphan(ctx, key)
		}
		return nil, &SubmissionError{Reason: ErrPersistFailed, Err: err}
	}

	return &Outcome{Record: rec, AssetKey: key, Confirmed: confirmed}, nil
}

func (f *Flow) handleOrphan(ctx context.Context, key string) {
	deleter, ok := f.collab.Objects.(ObjectDeleter)
	if !f.compensate || !ok {
		f.logger.Warn("uploaded asset left without a record", "object_key", key)
		return
	}
	delCtx, cancel := context.WithTimeout(ctx, f.uploadTimeout)
	defer cancel()
	if err := deleter.Delete(delCtx, key); err != nil {
		f.logger.Error("failed to delete orphaned asset", "object_key", key, "error", err)
		return
	}
	f.logger.Info("deleted orphaned asset", "object_key", key)
}

// Reset clears the form and returns the flow to Idle, releasing any preview.
// It is refused while a submission is in flight and once the flow is closed.
func (f *Flow) Reset(ctx context.Context) error {
	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	released := f.clearLocked()
	f.mu.Unlock()

	if released != nil {
		f.releasePreview(ctx, released.PreviewRef)
	}
	return nil
}

func (f *Flow) clearLocked() *UploadedAsset {
	released := f.asset
	f.asset = nil
	f.phase = PhaseIdle
	f.failure = nil
	f.contact = ""
	f.consent = false
	f.submitted = ""
	f.mode = f.variant.DefaultMode()
	return released
}

// SelectAsset replaces the selected asset. Files that are not png or jpeg are
// rejected with ErrUnsupportedAssetType and the current selection is kept.
// An empty declared type is sniffed from the content. The new preview is
// created before the old one is released, so a failed create keeps the
// current selection.
func (f *Flow) SelectAsset(ctx context.Context, file AssetFile) error {
	file = prepareAsset(file)
	if !IsAcceptedAssetType(file.ContentType) {
		return ErrUnsupportedAssetType
	}
	if len(file.Data) == 0 {
		return ErrInvalidAsset
	}

	f.mu.Lock()
	err := f.editableLocked()
	f.mu.Unlock()
	if err != nil {
		return err
	}

	ref, err := f.collab.Previews.Create(ctx, file.Data, file.ContentType)
	if err != nil {
		return fmt.Errorf("registration: create preview: %w", err)
	}

	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		f.releasePreview(ctx, ref)
		return err
	}
	previous := f.asset
	f.asset = &UploadedAsset{File: file, PreviewRef: ref}
	f.mu.Unlock()

	if previous != nil {
		f.releasePreview(ctx, previous.PreviewRef)
	}
	return nil
}

// RemoveAsset drops the selected asset and releases its preview.
func (f *Flow) RemoveAsset(ctx context.Context) error {
	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	removed := f.asset
	f.asset = nil
	f.mu.Unlock()

	if removed != nil {
		f.releasePreview(ctx, removed.PreviewRef)
	}
	return nil
}

// editableLocked reports why the form cannot be changed right now. f.mu must be held.
func (f *Flow) editableLocked() error {
	if f.closed {
		return ErrFlowClosed
	}
	if f.phase == PhaseSubmitting {
		return ErrAlreadyInProgress
	}
	return nil
}

// prepareAsset sniffs a missing content type and normalizes the declared one.
func prepareAsset(file AssetFile) AssetFile {
	if strings.TrimSpace(file.ContentType) == "" {
		file.ContentType = mimetype.Detect(file.Data).String()
	}
	file.ContentType = normalizeContentType(file.ContentType)
	return file
}

// Close tears the flow down. Its preview is released; a submission still in
// flight completes but its result is ignored.
func (f *Flow) Close(ctx context.Context) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	released := f.asset
	f.asset = nil
	f.mu.Unlock()

	if released != nil {
		f.releasePreview(ctx, released.PreviewRef)
	}
}

// releasePreview always attempts the release, even when ctx is already done.
func (f *Flow) releasePreview(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := f.collab.Previews.Release(ctx, ref); err != nil && !errors.Is(err, ErrPreviewNotFound) {
		f.logger.Warn("failed to release asset preview", "preview_ref", ref, "error", err)
	}
}
