package registration

import (
	"context"
	"errors"
)

// ObjectStore holds uploaded demo assets.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// PublicURL is deterministic for a key and performs no network round-trip.
	PublicURL(key string) string
}

// ObjectDeleter is implemented by object stores that can remove an orphaned upload.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// RecordStore persists registrations and reports a real success or failure.
type RecordStore interface {
	Insert(ctx context.Context, rec Record) error
}

// FormDispatcher hands a registration to a collaborator whose response cannot
// be read. A nil error only means the request left this process.
type FormDispatcher interface {
	Dispatch(ctx context.Context, rec Record) error
}

// PreviewStore keeps short-lived previews of selected assets.
type PreviewStore interface {
	Create(ctx context.Context, data []byte, contentType string) (string, error)
	Release(ctx context.Context, ref string) error
}

// Collaborators are the external services a Flow drives.
// Exactly one of Records and Dispatcher must be set.
type Collaborators struct {
	Objects    ObjectStore
	Records    RecordStore
	Dispatcher FormDispatcher
	Previews   PreviewStore
}

func (c Collaborators) validate(v Variant) error {
	if (c.Records == nil) == (c.Dispatcher == nil) {
		return errors.New("registration: exactly one of record store or form dispatcher required")
	}
	if v.RequiresAsset && c.Objects == nil {
		return errors.New("registration: object store required for asset variants")
	}
	return nil
}

// Listener receives the terminal notification of each accepted submission.
type Listener interface {
	OnSuccess(ctx context.Context, outcome Outcome)
	OnError(ctx context.Context, err error)
}

// Listeners fans a notification out to several listeners in order.
type Listeners []Listener

func (ls Listeners) OnSuccess(ctx context.Context, outcome Outcome) {
	for _, l := range ls {
		if l != nil {
			l.OnSuccess(ctx, outcome)
		}
	}
}

func (ls Listeners) OnError(ctx context.Context, err error) {
	for _, l := range ls {
		if l != nil {
			l.OnError(ctx, err)
		}
	}
}

// Recorder observes submission outcomes and step latency.
type Recorder interface {
	ObserveSubmission(kind, result string)
	ObserveStepLatency(step string, seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSubmission(string, string)   {}
func (nopRecorder) ObserveStepLatency(string, float64) {}
