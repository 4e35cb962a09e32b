package discovery

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrUnknownCurrency      = errors.New("unknown currency")
	ErrUnparseablePrice     = errors.New("unparseable price range")
	ErrUnparseableResponse  = errors.New("unparseable response time")
	errUnparseableLeadTime  = errors.New("unparseable lead time")
	numberPattern           = regexp.MustCompile(`\d+(?:\.\d+)?`)
	thousandsPattern        = regexp.MustCompile(`(\d),(\d{3})`)
	currencyCodePattern     = regexp.MustCompile(`\b[A-Z]{3}\b`)
	wordPattern             = regexp.MustCompile(`[a-z]+`)
	currencySymbols         = map[string]string{"$": "USD", "€": "EUR", "£": "GBP", "¥": "CNY", "₹": "INR"}
	// first match wins
	qualitativeResponseTime = []struct {
		word  string
		hours Range
	}{
		{"immediate", Range{0, 1}},
		{"instant", Range{0, 1}},
		{"same day", Range{0, 24}},
		{"next day", Range{24, 48}},
		{"fast", Range{0, 24}},
		{"quick", Range{0, 24}},
	}
	unitHours = map[string]float64{
		"min": 1.0 / 60, "mins": 1.0 / 60, "minute": 1.0 / 60, "minutes": 1.0 / 60,
		"h": 1, "hr": 1, "hrs": 1, "hour": 1, "hours": 1,
		"d": 24, "day": 24, "days": 24,
		"w": 168, "wk": 168, "wks": 168, "week": 168, "weeks": 168,
		"month": 720, "months": 720,
	}
)

// Normalizer converts candidate prices to the reference currency, response
// times to hours and lead times to days.
type Normalizer struct {
	Reference string
	Rates     map[string]float64 // units of USD per unit of currency
}

// Normalize returns the normalized candidate or an error when the price or
// response time cannot be expressed in normalized units. Unparseable lead
// times are repaired by clearing the display string.
func (n Normalizer) Normalize(c Candidate) (Candidate, error) {
	if strings.TrimSpace(c.PriceRange) != "" {
		r, err := n.price(c.PriceRange)
		if err != nil {
			return c, fmt.Errorf("%s: %w", c.Name, err)
		}
		c.Price = &r
		c.PriceCurrency = n.reference()
		c.PriceRange = fmt.Sprintf("%s %s", c.PriceCurrency, formatRange(r, 2))
	}
	if strings.TrimSpace(c.ResponseTime) != "" {
		r, err := parseResponseHours(c.ResponseTime)
		if err != nil {
			return c, fmt.Errorf("%s: %w", c.Name, err)
		}
		c.ResponseHours = &r
		c.ResponseTime = formatRange(r, 1) + " hours"
	}
	if strings.TrimSpace(c.LeadTime) != "" {
		if r, err := parseLeadDays(c.LeadTime); err == nil {
			c.LeadTimeDays = &r
			c.LeadTime = formatRange(r, 1) + " days"
		} else {
			c.LeadTime = ""
		}
	}
	return c, nil
}

// NormalizeAll normalizes every candidate, dropping the ones that fail.
func (n Normalizer) NormalizeAll(in []Candidate) ([]Candidate, []error) {
	out := make([]Candidate, 0, len(in))
	var dropped []error
	for _, c := range in {
		nc, err := n.Normalize(c)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		out = append(out, nc)
	}
	return out, dropped
}

func (n Normalizer) reference() string {
	if n.Reference == "" {
		return "USD"
	}
	return n.Reference
}

func (n Normalizer) price(s string) (Range, error) {
	currency, err := n.detectCurrency(s)
	if err != nil {
		return Range{}, err
	}
	nums := numbers(s)
	if len(nums) == 0 {
		return Range{}, ErrUnparseablePrice
	}
	from, ok := n.Rates[currency]
	if !ok {
		return Range{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	to, ok := n.Rates[n.reference()]
	if !ok || to == 0 {
		return Range{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, n.reference())
	}
	r := toRange(nums)
	factor := from / to
	return Range{Min: round(r.Min*factor, 2), Max: round(r.Max*factor, 2)}, nil
}

// detectCurrency finds an upper-case ISO code or a currency symbol. A known
// code wins over a symbol; a price with no marker is taken to be in the
// reference currency.
func (n Normalizer) detectCurrency(s string) (string, error) {
	var unknown string
	for _, code := range currencyCodePattern.FindAllString(s, -1) {
		if _, ok := n.Rates[code]; ok {
			return code, nil
		}
		if unknown == "" {
			unknown = code
		}
	}
	for _, sym := range []string{"$", "€", "£", "¥", "₹"} {
		if strings.Contains(s, sym) {
			return currencySymbols[sym], nil
		}
	}
	if unknown != "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, unknown)
	}
	return n.reference(), nil
}

// parseResponseHours prefers an explicit number with a unit over
// qualitative words.
func parseResponseHours(s string) (Range, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if nums := numbers(lower); len(nums) > 0 {
		if factor, ok := timeUnitHours(lower); ok {
			r := toRange(nums)
			return Range{Min: round(r.Min*factor, 2), Max: round(r.Max*factor, 2)}, nil
		}
	}
	for _, q := range qualitativeResponseTime {
		if strings.Contains(lower, q.word) {
			return q.hours, nil
		}
	}
	return Range{}, ErrUnparseableResponse
}

func parseLeadDays(s string) (Range, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	nums := numbers(lower)
	if len(nums) == 0 {
		return Range{}, errUnparseableLeadTime
	}
	factor := 1.0
	if hours, ok := timeUnitHours(lower); ok {
		factor = hours / 24
	}
	r := toRange(nums)
	return Range{Min: round(r.Min*factor, 2), Max: round(r.Max*factor, 2)}, nil
}

// timeUnitHours returns hours per unit for the first unit word found.
func timeUnitHours(s string) (float64, bool) {
	for _, tok := range wordPattern.FindAllString(s, -1) {
		if h, ok := unitHours[tok]; ok {
			return h, true
		}
	}
	return 0, false
}

func numbers(s string) []float64 {
	s = thousandsPattern.ReplaceAllString(s, "$1$2")
	var out []float64
	for _, m := range numberPattern.FindAllString(s, -1) {
		f, err := strconv.ParseFloat(m, 64)
		if err == nil {
			out = append(out, f)
		}
	}
	return out
}

func toRange(nums []float64) Range {
	r := Range{Min: nums[0], Max: nums[0]}
	if len(nums) > 1 {
		r.Max = nums[1]
	}
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	return r
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatRange(r Range, places int) string {
	if r.Min == r.Max {
		return strconv.FormatFloat(round(r.Min, places), 'f', -1, 64)
	}
	return strconv.FormatFloat(round(r.Min, places), 'f', -1, 64) + "-" + strconv.FormatFloat(round(r.Max, places), 'f', -1, 64)
}
