package address

import (
	"strings"
	"unicode"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
)

const phoneDigits = 10

// NormalizePhone strips every non-digit character from value.
func NormalizePhone(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize trims the form input and canonicalises the phone number.
func Normalize(fields domain.AddressFields) domain.AddressFields {
	return domain.AddressFields{
		Label:   collapseSpaces(fields.Label),
		Phone:   NormalizePhone(fields.Phone),
		Line1:   collapseSpaces(fields.Line1),
		Line2:   collapseSpaces(fields.Line2),
		Country: collapseSpaces(fields.Country),
	}
}

// Validate checks the add and edit form input. An empty result means valid.
func Validate(fields domain.AddressFields) domain.FieldErrors {
	errs := domain.FieldErrors{}
	if strings.TrimSpace(fields.Label) == "" {
		errs["label"] = "is required"
	}
	switch phone := NormalizePhone(fields.Phone); {
	case strings.TrimSpace(fields.Phone) == "":
		errs["phone"] = "is required"
	case len(phone) != phoneDigits:
		errs["phone"] = "must contain exactly 10 digits"
	}
	if strings.TrimSpace(fields.Line1) == "" {
		errs["line1"] = "is required"
	}
	return errs
}

func collapseSpaces(value string) string {
	return strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
}
