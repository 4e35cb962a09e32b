package research

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingParams = map[string]struct{}{
	"gclid":   {},
	"dclid":   {},
	"fbclid":  {},
	"msclkid": {},
	"igshid":  {},
	"ref":     {},
	"spm":     {},
}

// CanonicalURL reduces a supplier page URL to the form used for
// de-duplication: lower-case scheme and host without "www." or a default
// port, a cleaned path without trailing slash, no fragment, no tracking
// parameters and sorted query keys. Schemeless input is taken as https.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" && u.Host == "" {
		if u, err = url.Parse("https://" + strings.TrimPrefix(raw, "//")); err != nil {
			return "", err
		}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("url missing host")
	}
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	p := path.Clean("/" + u.Path)
	if p == "/" {
		p = ""
	}
	u.Path, u.RawPath = p, ""

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			q.Del(key)
		}
	}
	for _, vals := range q {
		sort.Strings(vals)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dedupeURLs drops blanks and URLs that canonicalize to one already seen,
// keeping the first spelling. Unparseable URLs are kept as given.
func dedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		key, err := CanonicalURL(u)
		if err != nil {
			key = u
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}
