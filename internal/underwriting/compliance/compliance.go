// internal/underwriting/compliance/compliance.go
package compliance

import (
	"fmt"
	"regexp"
	"strings"

	"mortgage-underwriting/internal/underwriting/applicant"
)

// Redaction placeholders.
const (
	NamePlaceholder    = "[APPLICANT_NAME]"
	AddressPlaceholder = "[ADDRESS]"
	EmailPlaceholder   = "[EMAIL]"
)

// GeographicProxyFlag is raised when an analysis talks about neighborhoods for
// an applicant whose record carries a zip code.
const GeographicProxyFlag = "Potential geographic bias proxy (zip/neighborhood). Review for fair-lending compliance."

var protectedTerms = []string{
	"race",
	"color",
	"religion",
	"national origin",
	"sex",
	"gender",
	"marital status",
	"age",
	"disability",
	"familial status",
	"pregnan",
	"citizenship",
}

var nonDigits = regexp.MustCompile(`\D+`)

// Sanitize returns a deep copy of data with the top-level PII fields redacted.
// The input is not modified.
func Sanitize(data applicant.Record) applicant.Record {
	out := data.Clone()
	if out == nil {
		return applicant.Record{}
	}

	if out.Has("ssn") {
		out["ssn"] = "***-**-" + lastFour(applicant.AsString(out["ssn"]))
	}
	if out.Has("name") {
		out["name"] = NamePlaceholder
	}
	if out.Has("address") {
		out["address"] = AddressPlaceholder
	}
	if out.Has("phone") {
		digits := nonDigits.ReplaceAllString(applicant.AsString(out["phone"]), "")
		out["phone"] = "***-***-" + lastFour(digits)
	}
	if out.Has("email") {
		out["email"] = EmailPlaceholder
	}
	return out
}

func lastFour(s string) string {
	if len(s) < 4 {
		return "XXXX"
	}
	return s[len(s)-4:]
}

// DetectBiasSignals flags generated text that mentions protected
// characteristics. It is a substring heuristic, not a classifier.
func DetectBiasSignals(text string, data applicant.Record) []string {
	lower := strings.ToLower(text)
	flags := make([]string, 0)

	for _, term := range protectedTerms {
		if strings.Contains(lower, term) {
			flags = append(flags, fmt.Sprintf("Analysis mentions protected characteristic: %s", term))
		}
	}

	if data.Has("zip") || data.Has("zipcode") {
		if strings.Contains(lower, "neighborhood") || strings.Contains(lower, "area") {
			flags = append(flags, GeographicProxyFlag)
		}
	}
	return flags
}

// RedactedValues lists the original PII strings of data that must never
// appear in anything derived from the sanitized record.
func RedactedValues(data applicant.Record) []string {
	values := make([]string, 0, 5)
	for _, key := range []string{"ssn", "name", "address", "phone", "email"} {
		if v := strings.TrimSpace(data.String(key)); v != "" {
			values = append(values, v)
		}
	}
	return values
}
