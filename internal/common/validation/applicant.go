// internal/common/validation/applicant.go
package validation

import (
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// RootField names the document itself in validation errors.
const RootField = "(root)"

// ApplicantSchema describes the submitted applicant record. Every section is
// optional or null and numeric values may arrive as strings. Only types are
// enforced: out-of-range figures reach the extractor, which degrades them to
// 0 or +Inf.
const ApplicantSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "case_id": {"type": ["string", "null"], "maxLength": 256},
    "credit_score": {"type": ["number", "string", "null"]},
    "dti_ratio": {"type": ["number", "string", "null"]},
    "zip": {"type": ["string", "number", "null"]},
    "zipcode": {"type": ["string", "number", "null"]},
    "employment": {
      "type": ["object", "null"],
      "properties": {
        "monthly_income": {"type": ["number", "string", "null"]},
        "years": {"type": ["number", "string", "null"]},
        "years_employed": {"type": ["number", "string", "null"]},
        "type": {"type": ["string", "null"]}
      }
    },
    "loan": {
      "type": ["object", "null"],
      "properties": {
        "amount": {"type": ["number", "string", "null"]},
        "monthly_piti": {"type": ["number", "string", "null"]},
        "estimated_payment": {"type": ["number", "string", "null"]},
        "property_type": {"type": ["string", "null"]}
      }
    },
    "property": {
      "type": ["object", "null"],
      "properties": {
        "appraised_value": {"type": ["number", "string", "null"]},
        "required_repairs": {"type": ["number", "string", "null"]},
        "type": {"type": ["string", "null"]}
      }
    },
    "assets": {
      "type": ["object", "null"],
      "properties": {
        "checking": {"type": ["number", "string", "null"]},
        "savings": {"type": ["number", "string", "null"]},
        "liquid_assets_total": {"type": ["number", "string", "null"]},
        "recent_deposits": {
          "type": ["array", "null"],
          "items": {"type": "object"}
        },
        "deposit_explanations": {"type": ["string", "null"]}
      }
    },
    "debts": {"type": ["object", "null"]},
    "credit_history": {
      "type": ["object", "null"],
      "properties": {
        "late_payments_12mo": {"type": ["number", "string", "null"]},
        "bankruptcies": {"type": ["number", "string", "null"]},
        "foreclosures": {"type": ["number", "string", "null"]}
      }
    }
  }
}`

var applicantSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(ApplicantSchema))
})

// ValidateApplicant checks an applicant record against ApplicantSchema.
// Documents that cannot be loaded at all are reported as a root error.
func ValidateApplicant(data map[string]interface{}) *ValidationResult {
	schema, err := applicantSchema()
	if err == nil {
		var result *gojsonschema.Result
		result, err = schema.Validate(gojsonschema.NewGoLoader(data))
		if err == nil {
			return fromResult(result)
		}
	}
	return &ValidationResult{
		Valid: false,
		Errors: []ValidationError{{
			Field:   RootField,
			Message: err.Error(),
			Code:    "SCHEMA_ERROR",
		}},
	}
}
