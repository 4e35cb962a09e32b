package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ConstraintKind tags the shape of a Constraint.
type ConstraintKind int

const (
	// PointConstraint matches a value exactly (or by membership for lists).
	PointConstraint ConstraintKind = iota + 1
	// RangeConstraint bounds a numeric value from above and/or below.
	RangeConstraint
)

// Constraint is one named requirement. Point constraints carry Value
// (string, float64, bool or []string); range constraints carry Min/Max.
type Constraint struct {
	Kind  ConstraintKind
	Value any
	Min   *float64
	Max   *float64
}

// Point builds a point constraint.
func Point(v any) Constraint { return Constraint{Kind: PointConstraint, Value: v} }

// AtMost builds an upper-bounded range.
func AtMost(n float64) Constraint { return Constraint{Kind: RangeConstraint, Max: &n} }

// AtLeast builds a lower-bounded range.
func AtLeast(n float64) Constraint { return Constraint{Kind: RangeConstraint, Min: &n} }

// Between builds a range bounded on both sides.
func Between(min, max float64) Constraint {
	return Constraint{Kind: RangeConstraint, Min: &min, Max: &max}
}

func (c Constraint) IsRange() bool { return c.Kind == RangeConstraint }

// Text renders the constraint value for free-text queries. Ranges render empty.
func (c Constraint) Text() string {
	if c.Kind != PointConstraint {
		return ""
	}
	switch v := c.Value.(type) {
	case []string:
		return strings.Join(v, " ")
	case float64:
		return formatNumber(v)
	default:
		return fmt.Sprint(v)
	}
}

func (c Constraint) clone() Constraint {
	out := Constraint{Kind: c.Kind, Value: c.Value}
	if list, ok := c.Value.([]string); ok {
		out.Value = append([]string(nil), list...)
	}
	if c.Min != nil {
		v := *c.Min
		out.Min = &v
	}
	if c.Max != nil {
		v := *c.Max
		out.Max = &v
	}
	return out
}

// MarshalJSON writes point constraints as their bare value and ranges as
// {"$gte": min, "$lte": max}.
func (c Constraint) MarshalJSON() ([]byte, error) {
	if c.Kind == RangeConstraint {
		m := map[string]float64{}
		if c.Min != nil {
			m["$gte"] = *c.Min
		}
		if c.Max != nil {
			m["$lte"] = *c.Max
		}
		return json.Marshal(m)
	}
	return json.Marshal(c.Value)
}

func (c *Constraint) UnmarshalJSON(b []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := constraintFromValue(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Requirements is the requirement set of a session, keyed by field name.
type Requirements map[string]Constraint

// Clone returns a deep copy.
func (r Requirements) Clone() Requirements {
	out := make(Requirements, len(r))
	for k, v := range r {
		out[k] = v.clone()
	}
	return out
}

// Fill copies fields from other that are absent in r. Present fields are never replaced.
func (r Requirements) Fill(other Requirements) int {
	n := 0
	for k, v := range other {
		if _, ok := r[k]; ok {
			continue
		}
		r[k] = v.clone()
		n++
	}
	return n
}

// Keys returns the field names in sorted order.
func (r Requirements) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns a point constraint's value as a string, or "".
func (r Requirements) String(field string) string {
	c, ok := r[field]
	if !ok || c.Kind != PointConstraint {
		return ""
	}
	return c.Text()
}

// SearchText joins the point values of the given fields, skipping absent ones.
func (r Requirements) SearchText(fields ...string) string {
	if len(fields) == 0 {
		fields = r.Keys()
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.TrimSpace(r.String(f)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// ParseRequirements converts a decoded JSON object into a Requirements set.
// Scalars and string arrays become point constraints; objects using
// $lte/$gte or max/min become inclusive range constraints. Exclusive
// $lt/$gt bounds are rejected since ranges are always inclusive.
func ParseRequirements(raw map[string]any) (Requirements, error) {
	out := make(Requirements, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, fmt.Errorf("requirement with empty field name")
		}
		c, err := constraintFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("requirement %q: %w", key, err)
		}
		out[key] = c
	}
	return out, nil
}

// DecodeRequirements parses a JSON object into a Requirements set.
func DecodeRequirements(b []byte) (Requirements, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode requirements: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode requirements: expected a JSON object")
	}
	return ParseRequirements(raw)
}

func constraintFromValue(v any) (Constraint, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return Constraint{}, fmt.Errorf("empty value")
		}
		return Point(s), nil
	case float64:
		return Point(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Constraint{}, err
		}
		return Point(f), nil
	case int:
		return Point(float64(t)), nil
	case bool:
		return Point(t), nil
	case []string:
		return Point(append([]string(nil), t...)), nil
	case []any:
		list := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return Constraint{}, fmt.Errorf("list values must be strings, got %T", item)
			}
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
		return Point(list), nil
	case map[string]any:
		return rangeFromObject(t)
	case nil:
		return Constraint{}, fmt.Errorf("null value")
	default:
		return Constraint{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func rangeFromObject(m map[string]any) (Constraint, error) {
	c := Constraint{Kind: RangeConstraint}
	for k, v := range m {
		n, ok := toFloat(v)
		if !ok {
			return Constraint{}, fmt.Errorf("range bound %q must be numeric", k)
		}
		switch strings.ToLower(k) {
		case "$lte", "max":
			c.Max = &n
		case "$gte", "min":
			c.Min = &n
		case "$lt", "$gt":
			return Constraint{}, fmt.Errorf("exclusive range operator %q is not supported, use $lte or $gte", k)
		default:
			return Constraint{}, fmt.Errorf("unknown range operator %q", k)
		}
	}
	if c.Min == nil && c.Max == nil {
		return Constraint{}, fmt.Errorf("range without bounds")
	}
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return Constraint{}, fmt.Errorf("range min %v exceeds max %v", *c.Min, *c.Max)
	}
	return c, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

const (
	envelopeRequirements = "requirements"
	envelopeReport       = "report"
	envelopeVersion      = 1
)

type envelope struct {
	Kind         string          `json:"kind"`
	Version      int             `json:"version"`
	Requirements json.RawMessage `json:"requirements,omitempty"`
	Report       json.RawMessage `json:"report,omitempty"`
}

// EncodeRequirementsTurn wraps a requirement set in the versioned envelope
// stored in conversation history.
func EncodeRequirementsTurn(r Requirements) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(envelope{Kind: envelopeRequirements, Version: envelopeVersion, Requirements: body})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeRequirementsTurn reads a requirement set back from a history turn.
// Content that is not a requirements envelope of a known version is rejected.
func DecodeRequirementsTurn(content string) (Requirements, error) {
	var env envelope
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("not a structured turn: %w", err)
	}
	if env.Kind != envelopeRequirements {
		return nil, fmt.Errorf("turn kind %q is not %q", env.Kind, envelopeRequirements)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported requirements version %d", env.Version)
	}
	if len(env.Requirements) == 0 {
		return nil, fmt.Errorf("requirements envelope without body")
	}
	return DecodeRequirements(env.Requirements)
}

// EncodeReportTurn wraps an encoded report for the assistant history turn.
func EncodeReportTurn(report []byte) (string, error) {
	b, err := json.Marshal(envelope{Kind: envelopeReport, Version: envelopeVersion, Report: report})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
