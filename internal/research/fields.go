package research

import (
	"regexp"
	"sort"
	"strings"
)

var (
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe    = regexp.MustCompile(`\+\d[\d\s\-()]{7,}\d`)
	priceRe    = regexp.MustCompile(`(?i)(?:[$€£¥]|\b(?:USD|EUR|GBP|CNY|INR|LKR|JPY)\s?)\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:-|to)\s?(?:[$€£¥])?\d[\d,]*(?:\.\d+)?)?(?:\s?(?:USD|EUR|GBP|CNY|INR|LKR|JPY)\b)?`)
	leadRe     = regexp.MustCompile(`(?i)lead\s*time[^0-9]{0,20}(\d+\s*(?:-|to)?\s*\d*\s*(?:business\s+)?(?:days?|weeks?|months?))`)
	moqRe      = regexp.MustCompile(`(?i)(?:moq|minimum order(?: quantity)?)[^0-9]{0,20}(\d[\d,]*\s*[a-z]*)`)
	certRe     = regexp.MustCompile(`(?i)\b(ISO\s?\d{4,5}(?::\d{4})?|RoHS|REACH|CE|FDA|GMP|HACCP|FSC|IATF\s?16949)\b`)
	responseRe = regexp.MustCompile(`(?i)respon\w*\s+(?:time\s+)?(?:within\s+)?(\d+\s*(?:-|to)?\s*\d*\s*(?:hours?|hrs?|days?))`)
)

// SniffFields pulls supplier attributes that commonly appear verbatim on
// supplier pages. Keys follow the candidate field names.
func SniffFields(text string) map[string]any {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	out := map[string]any{}
	contact := map[string]any{}
	if m := emailRe.FindString(text); m != "" {
		contact["email"] = m
	}
	if m := phoneRe.FindString(text); m != "" {
		contact["phone"] = strings.TrimSpace(m)
	}
	if len(contact) > 0 {
		out["contact"] = contact
	}
	if m := priceRe.FindString(text); m != "" {
		out["price_range"] = strings.TrimSpace(m)
	}
	if m := leadRe.FindStringSubmatch(text); len(m) > 1 {
		out["lead_time"] = strings.TrimSpace(m[1])
	}
	if m := moqRe.FindStringSubmatch(text); len(m) > 1 {
		out["moq"] = strings.TrimSpace(m[1])
	}
	if m := responseRe.FindStringSubmatch(text); len(m) > 1 {
		out["response_time"] = strings.TrimSpace(m[1])
	}
	if certs := uniqueMatches(certRe, text); len(certs) > 0 {
		out["certifications"] = certs
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func uniqueMatches(re *regexp.Regexp, text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range re.FindAllString(text, -1) {
		key := strings.ToUpper(strings.ReplaceAll(m, " ", ""))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
