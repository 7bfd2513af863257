package registration

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxEmailLength is the RFC 5321 mailbox ceiling applied to email contacts.
const MaxEmailLength = 254

// maxPhoneDigits is the longest phone number the form accepts.
const maxPhoneDigits = 11

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail reports whether s looks like local@domain.tld and fits the
// mailbox length limit. The limit counts bytes, as RFC 5321 does, so a
// multibyte address reaches it sooner than its character count suggests.
// Any Unicode space (NBSP, U+3000 from Korean IMEs, BOM) is rejected, not
// only the ASCII ones RE2's \s covers. Callers normalize (trim, lowercase)
// before calling.
func ValidateEmail(s string) bool {
	if s == "" || len(s) > MaxEmailLength {
		return false
	}
	if strings.IndexFunc(s, isEmailSpace) >= 0 {
		return false
	}
	return emailPattern.MatchString(s)
}

func isEmailSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// ValidatePhone reports whether s carries 10 or 11 digits once separators are dropped.
func ValidatePhone(s string) bool {
	n := len(ExtractDigits(s))
	return n >= 10 && n <= maxPhoneDigits
}

// ExtractDigits returns only the ASCII digits of s.
func ExtractDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// LimitPhoneDigits strips s to digits and truncates it to the longest accepted number.
func LimitPhoneDigits(s string) string {
	digits := ExtractDigits(s)
	if len(digits) > maxPhoneDigits {
		return digits[:maxPhoneDigits]
	}
	return digits
}

// FormatPhoneDisplay groups digits as XXX, XXX-XXXX or XXX-XXXX-XXXX.
// It is display-only; stored values stay digits.
func FormatPhoneDisplay(digits string) string {
	cleaned := ExtractDigits(digits)
	switch {
	case cleaned == "":
		return ""
	case len(cleaned) <= 3:
		return cleaned
	case len(cleaned) <= 7:
		return cleaned[:3] + "-" + cleaned[3:]
	default:
		end := len(cleaned)
		if end > maxPhoneDigits {
			end = maxPhoneDigits
		}
		return cleaned[:3] + "-" + cleaned[3:7] + "-" + cleaned[7:end]
	}
}

// NormalizeContact prepares a raw contact for validation and storage.
func NormalizeContact(raw string, mode ContactMode) string {
	switch mode {
	case ContactPhone:
		return ExtractDigits(raw)
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

// ValidateContact applies the validator for mode to an already normalized contact.
func ValidateContact(contact string, mode ContactMode) bool {
	switch mode {
	case ContactEmail:
		return ValidateEmail(contact)
	case ContactPhone:
		return ValidatePhone(contact)
	default:
		return false
	}
}
