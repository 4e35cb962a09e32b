package toolagent

import (
	"math"
	"strings"
)

// RequiredSupplierFields are the fields a supplier record needs before it is
// considered complete.
var RequiredSupplierFields = []string{
	"company_name", "location", "rating", "price_range", "lead_time", "moq",
	"certifications", "specialties", "response_time", "stock", "time_zone", "contact",
}

// Completeness is the result of ValidateSupplierData.
type Completeness struct {
	IsValid           bool     `json:"is_valid"`
	MissingFields     []string `json:"missing_fields"`
	CompletenessScore float64  `json:"completeness_score"`
}

// ValidateSupplierData reports which required fields are absent or empty.
// The score is the percentage of present fields rounded to one decimal.
func ValidateSupplierData(record map[string]any) Completeness {
	missing := []string{}
	for _, f := range RequiredSupplierFields {
		if empty(record[f]) {
			missing = append(missing, f)
		}
	}
	total := float64(len(RequiredSupplierFields))
	score := (total - float64(len(missing))) / total * 100
	return Completeness{
		IsValid:           len(missing) == 0,
		MissingFields:     missing,
		CompletenessScore: math.Round(score*10) / 10,
	}
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case int:
		return t == 0
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
