package discovery

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/sourcer/utils"
)

// ErrNoSuppliers is returned when a finalized supplier list is empty.
var ErrNoSuppliers = errors.New("no suppliers provided: at least one supplier is required")

// Provenance records which source produced a candidate.
type Provenance string

const (
	ProvenanceStore Provenance = "store"
	ProvenanceWeb   Provenance = "web"
)

// Range is a closed numeric interval in a normalized unit.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contact holds supplier contact details.
type Contact struct {
	Website string `json:"website,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

func (c Contact) Empty() bool { return c.Website == "" && c.Phone == "" && c.Email == "" }

// Candidate is a prospective supplier. PriceRange, LeadTime and ResponseTime
// hold display strings; after normalization they are rewritten from the
// normalized Price, LeadTimeDays and ResponseHours ranges.
type Candidate struct {
	Name           string         `json:"company_name"`
	Provenance     Provenance     `json:"provenance"`
	Location       string         `json:"location,omitempty"`
	Rating         *float64       `json:"rating,omitempty"`
	PriceRange     string         `json:"price_range,omitempty"`
	Price          *Range         `json:"price,omitempty"`
	PriceCurrency  string         `json:"price_currency,omitempty"`
	LeadTime       string         `json:"lead_time,omitempty"`
	LeadTimeDays   *Range         `json:"lead_time_days,omitempty"`
	MOQ            string         `json:"moq,omitempty"`
	Certifications []string       `json:"certifications,omitempty"`
	Specialties    []string       `json:"specialties,omitempty"`
	ResponseTime   string         `json:"response_time,omitempty"`
	ResponseHours  *Range         `json:"response_hours,omitempty"`
	Stock          string         `json:"stock,omitempty"`
	TimeZone       string         `json:"time_zone,omitempty"`
	Contact        Contact        `json:"contact,omitempty"`
	SourceURL      string         `json:"source_url,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

var knownCandidateKeys = map[string]struct{}{
	"company_name": {}, "name": {}, "supplier_name": {}, "provenance": {}, "location": {},
	"rating": {}, "price_range": {}, "price": {}, "lead_time": {}, "delivery_time_days": {},
	"moq": {}, "certifications": {}, "specialties": {}, "response_time": {}, "stock": {},
	"time_zone": {}, "contact": {}, "website": {}, "phone": {}, "email": {}, "url": {}, "source_url": {},
}

// CandidateFromMap builds a Candidate from a loosely-typed record such as a
// web extraction fragment or a planner-supplied supplier. Unknown keys are
// kept in Extra.
func CandidateFromMap(m map[string]any, prov Provenance) Candidate {
	c := Candidate{Provenance: prov}
	c.Name = firstString(m, "company_name", "name", "supplier_name")
	c.Location = str(m["location"])
	if r, ok := numberOf(m["rating"]); ok {
		c.Rating = &r
	}
	c.PriceRange = firstString(m, "price_range", "price")
	c.LeadTime = str(m["lead_time"])
	if c.LeadTime == "" {
		if d, ok := numberOf(m["delivery_time_days"]); ok {
			c.LeadTime = formatNumber(d) + " days"
		}
	}
	c.MOQ = str(m["moq"])
	c.Certifications = stringList(m["certifications"])
	c.Specialties = stringList(m["specialties"])
	c.ResponseTime = str(m["response_time"])
	c.Stock = str(m["stock"])
	c.TimeZone = str(m["time_zone"])
	if contact, ok := m["contact"].(map[string]any); ok {
		c.Contact = Contact{Website: str(contact["website"]), Phone: str(contact["phone"]), Email: str(contact["email"])}
	}
	if c.Contact.Website == "" {
		c.Contact.Website = str(m["website"])
	}
	if c.Contact.Phone == "" {
		c.Contact.Phone = str(m["phone"])
	}
	if c.Contact.Email == "" {
		c.Contact.Email = str(m["email"])
	}
	c.SourceURL = firstString(m, "source_url", "url")
	for k, v := range m {
		if _, ok := knownCandidateKeys[k]; ok {
			continue
		}
		if c.Extra == nil {
			c.Extra = map[string]any{}
		}
		c.Extra[k] = v
	}
	return c
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return formatNumber(t)
	default:
		return strings.TrimSpace(utils.Str(v))
	}
}

func numberOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := str(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}
