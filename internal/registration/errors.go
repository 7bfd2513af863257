package registration

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingContact is returned when the contact field is empty
	ErrMissingContact = errors.New("registration: contact is required")

	// ErrInvalidContact is returned when the contact fails the active validator
	ErrInvalidContact = errors.New("registration: contact is invalid")

	// ErrConsentRequired is returned when privacy consent is required but missing
	ErrConsentRequired = errors.New("registration: privacy consent is required")

	// ErrInvalidAsset is returned when a required asset is missing or not png/jpeg
	ErrInvalidAsset = errors.New("registration: a png or jpeg image is required")

	// ErrUnsupportedAssetType is returned by SelectAsset for non png/jpeg files
	ErrUnsupportedAssetType = errors.New("registration: unsupported asset type")

	// ErrAlreadyInProgress is returned when a submission is already in flight
	ErrAlreadyInProgress = errors.New("registration: submission already in progress")

	// ErrUploadFailed is returned when the object store rejects the asset
	ErrUploadFailed = errors.New("registration: asset upload failed")

	// ErrPersistFailed is returned when the record could not be stored
	ErrPersistFailed = errors.New("registration: record persist failed")

	// ErrFlowClosed is returned by operations on a torn-down flow
	ErrFlowClosed = errors.New("registration: flow closed")
)

// SubmissionError carries the failure reason of a submission plus its cause.
type SubmissionError struct {
	Reason error
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%v: %v", e.Reason, e.Err)
}

// Unwrap lets errors.Is match both the reason sentinel and the cause.
func (e *SubmissionError) Unwrap() []error {
	return []error{e.Reason, e.Err}
}

// IsValidationError reports whether err was detected before any network I/O.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingContact) ||
		errors.Is(err, ErrInvalidContact) ||
		errors.Is(err, ErrConsentRequired) ||
		errors.Is(err, ErrInvalidAsset) ||
		errors.Is(err, ErrUnsupportedAssetType)
}

// ReasonCode is the stable machine-readable name for err.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingContact):
		return "missing_contact"
	case errors.Is(err, ErrInvalidContact):
		return "invalid_contact"
	case errors.Is(err, ErrConsentRequired):
		return "consent_required"
	case errors.Is(err, ErrUnsupportedAssetType):
		return "unsupported_asset_type"
	case errors.Is(err, ErrInvalidAsset):
		return "invalid_asset"
	case errors.Is(err, ErrAlreadyInProgress):
		return "already_in_progress"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, ErrPersistFailed):
		return "persist_failed"
	case errors.Is(err, ErrFlowClosed):
		return "flow_closed"
	default:
		return "internal"
	}
}

// UserMessage returns the inline message shown to the visitor for err.
// AlreadyInProgress is absorbed silently and maps to an empty message.
func UserMessage(err error, mode ContactMode) string {
	switch {
	case err == nil, errors.Is(err, ErrAlreadyInProgress):
		return ""
	case errors.Is(err, ErrMissingContact):
		if mode == ContactPhone {
			return "전화번호를 입력해주세요"
		}
		return "이메일을 입력해주세요"
	case errors.Is(err, ErrInvalidContact):
		if mode == ContactPhone {
			return "올바른 전화번호 형식이 아닙니다 (10-11자리)"
		}
		return "올바른 이메일 형식이 아닙니다"
	case errors.Is(err, ErrConsentRequired):
		return "개인정보 수집 및 이용에 동의해주세요"
	case errors.Is(err, ErrUnsupportedAssetType):
		return "PNG 또는 JPG 파일만 업로드 가능합니다."
	case errors.Is(err, ErrInvalidAsset):
		return "이미지와 연락처를 모두 입력해주세요."
	case errors.Is(err, ErrUploadFailed):
		return "업로드 중 오류가 발생했습니다. 다시 시도해주세요."
	default:
		return "오류가 발생했습니다. 다시 시도해주세요."
	}
}
