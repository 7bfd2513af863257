package registration

import (
	"path"
	"strings"
	"time"
)

// Kind identifies which landing-page form produced a registration.
type Kind string

const (
	KindEarlyAccess Kind = "early_access"
	KindDemoRequest Kind = "demo_request"
)

// ContactMode selects how a visitor wants to be reached.
type ContactMode string

const (
	ContactEmail ContactMode = "email"
	ContactPhone ContactMode = "phone"
)

// ParseContactMode maps a form value to a ContactMode.
func ParseContactMode(raw string) (ContactMode, bool) {
	switch ContactMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ContactEmail:
		return ContactEmail, true
	case ContactPhone:
		return ContactPhone, true
	default:
		return "", false
	}
}

// Phase is the submission lifecycle of a Flow.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// Variant describes what one registration form demands from the visitor.
type Variant struct {
	Name            string
	Kind            Kind
	RequiresConsent bool
	RequiresAsset   bool
	ContactModes    []ContactMode
}

// Allows reports whether the variant accepts contacts in mode.
func (v Variant) Allows(mode ContactMode) bool {
	for _, m := range v.ContactModes {
		if m == mode {
			return true
		}
	}
	return false
}

// DefaultMode is the first configured contact mode, email when none is set.
func (v Variant) DefaultMode() ContactMode {
	if len(v.ContactModes) == 0 {
		return ContactEmail
	}
	return v.ContactModes[0]
}

// EarlyAccessVariant is the pre-register contact form: email plus privacy consent.
func EarlyAccessVariant() Variant {
	return Variant{
		Name:            "early_access",
		Kind:            KindEarlyAccess,
		RequiresConsent: true,
		ContactModes:    []ContactMode{ContactEmail},
	}
}

// HeroReserveVariant is the hero "launch alert" form, reachable by email or phone.
func HeroReserveVariant() Variant {
	return Variant{
		Name:            "hero_reserve",
		Kind:            KindEarlyAccess,
		RequiresConsent: true,
		ContactModes:    []ContactMode{ContactEmail, ContactPhone},
	}
}

// DemoRequestVariant is the free sample form: email plus a character illustration.
func DemoRequestVariant() Variant {
	return Variant{
		Name:          "demo_request",
		Kind:          KindDemoRequest,
		RequiresAsset: true,
		ContactModes:  []ContactMode{ContactEmail},
	}
}

// LookupVariant returns a built-in variant by name.
func LookupVariant(name string) (Variant, bool) {
	switch strings.TrimSpace(name) {
	case "early_access", "":
		return EarlyAccessVariant(), true
	case "hero_reserve":
		return HeroReserveVariant(), true
	case "demo_request":
		return DemoRequestVariant(), true
	default:
		return Variant{}, false
	}
}

// AssetFile is an image the visitor attached to a demo request.
type AssetFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Extension returns the lowercase file extension without the dot, derived
// from the file name or, failing that, the content type.
func (a AssetFile) Extension() string {
	if ext := strings.TrimPrefix(path.Ext(a.Name), "."); ext != "" {
		return strings.ToLower(ext)
	}
	switch normalizeContentType(a.ContentType) {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	default:
		return "bin"
	}
}

// UploadedAsset is the selected asset together with its local preview reference.
type UploadedAsset struct {
	File       AssetFile
	PreviewRef string
}

// Input is one submit action from the form.
type Input struct {
	Contact      string
	Mode         ContactMode
	Asset        *AssetFile
	ConsentGiven bool
}

// Record is the row written to the record store.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact returns whichever contact field is populated.
func (r Record) Contact() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Phone
}

// Outcome is delivered to listeners after a successful submission.
type Outcome struct {
	Record   Record
	AssetKey string
	// Confirmed is false when the record went to a collaborator that never acknowledges.
	Confirmed bool
}

// AssetState is the public view of the selected asset.
type AssetState struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	PreviewRef  string `json:"preview_ref"`
}

// State is a snapshot of a Flow.
type State struct {
	Variant          string      `json:"variant"`
	Phase            Phase       `json:"phase"`
	FailureReason    string      `json:"failure_reason,omitempty"`
	Contact          string      `json:"contact,omitempty"`
	ContactDisplay   string      `json:"contact_display,omitempty"`
	Mode             ContactMode `json:"contact_mode"`
	ConsentGiven     bool        `json:"consent_given"`
	Asset            *AssetState `json:"asset,omitempty"`
	SubmittedContact string      `json:"submitted_contact,omitempty"`
}
