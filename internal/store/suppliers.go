package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/utils"
)

const defaultSupplierLimit = 50

const supplierColumns = `id, company_name, COALESCE(location,''), rating, COALESCE(price_range,''),
       COALESCE(lead_time,''), COALESCE(moq,''), certifications, specialties,
       COALESCE(response_time,''), COALESCE(stock,''), COALESCE(time_zone,''),
       contact, COALESCE(source_url,''), attributes`

// Columns compared by case-insensitive containment.
var containsColumns = map[string]string{
	"location":     "location",
	"region":       "location",
	"company_name": "company_name",
}

// Columns compared by case-insensitive equality.
var equalColumns = map[string]string{
	"stock":     "stock",
	"time_zone": "time_zone",
	"esg_score": "esg_score",
}

var arrayColumns = map[string]string{
	"certifications": "certifications",
	"specialties":    "specialties",
}

type bound struct{ atMost, atLeast string }

// Numeric columns, with the column each bound is checked against.
var numericColumns = map[string]bound{
	"rating":             {"rating", "rating"},
	"delivery_time_days": {"delivery_time_days", "delivery_time_days"},
	"lead_time_days":     {"delivery_time_days", "delivery_time_days"},
	"price":              {"price_min", "price_max"},
}

// Query implements discovery.CandidateStore. Fields without a dedicated
// column are matched against the attributes document.
func (s *Store) Query(ctx context.Context, f discovery.Filter) ([]discovery.Candidate, error) {
	q, args := buildSupplierQuery(f)
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query suppliers: %w", err)
	}
	defer rows.Close()

	var out []discovery.Candidate
	for rows.Next() {
		c, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.log().Debug("supplier query", zap.Int("rows", len(out)))
	return out, nil
}

func buildSupplierQuery(f discovery.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, field := range sortedKeys(f.Equals) {
		val := utils.Str(f.Equals[field])
		switch {
		case field == "material":
			p := arg(val)
			where = append(where, fmt.Sprintf("(material ILIKE %s OR EXISTS (SELECT 1 FROM unnest(specialties) sp WHERE sp ILIKE %s))", p, p))
		case containsColumns[field] != "":
			where = append(where, fmt.Sprintf("%s ILIKE '%%' || %s::text || '%%'", containsColumns[field], arg(val)))
		case equalColumns[field] != "":
			where = append(where, fmt.Sprintf("lower(%s) = lower(%s)", equalColumns[field], arg(val)))
		default:
			where = append(where, fmt.Sprintf("lower(attributes->>%s::text) = lower(%s)", arg(field), arg(val)))
		}
	}
	for _, field := range sortedKeys(f.In) {
		if col, ok := arrayColumns[field]; ok {
			where = append(where, fmt.Sprintf("%s::text[] <@ %s", arg(pq.Array(f.In[field])), col))
			continue
		}
		where = append(where, fmt.Sprintf("attributes->%s::text ?& %s::text[]", arg(field), arg(pq.Array(f.In[field]))))
	}
	for _, field := range sortedKeys(f.AtMost) {
		where = append(where, numericPredicate(field, "<=", f.AtMost[field], arg))
	}
	for _, field := range sortedKeys(f.AtLeast) {
		where = append(where, numericPredicate(field, ">=", f.AtLeast[field], arg))
	}
	if strings.TrimSpace(f.Text) != "" {
		where = append(where, fmt.Sprintf("search_tsv @@ plainto_tsquery('english', %s)", arg(f.Text)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSupplierLimit
	}
	var b strings.Builder
	b.WriteString("SELECT " + supplierColumns + "\nFROM suppliers")
	if len(where) > 0 {
		b.WriteString("\nWHERE " + strings.Join(where, "\n  AND "))
	}
	b.WriteString("\nORDER BY rating DESC NULLS LAST, company_name\nLIMIT " + arg(limit))
	return b.String(), args
}

func numericPredicate(field, op string, v float64, arg func(any) string) string {
	if col, ok := numericColumns[field]; ok {
		c := col.atMost
		if op == ">=" {
			c = col.atLeast
		}
		return fmt.Sprintf("%s %s %s", c, op, arg(v))
	}
	k := arg(field) + "::text"
	return fmt.Sprintf("CASE WHEN attributes->>%s ~ '^-?[0-9]+(\\.[0-9]+)?$' THEN (attributes->>%s)::double precision %s %s ELSE false END", k, k, op, arg(v))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSupplier(r rowScanner) (discovery.Candidate, error) {
	var (
		c          discovery.Candidate
		id         string
		rating     sql.NullFloat64
		contact    []byte
		attributes []byte
	)
	err := r.Scan(&id, &c.Name, &c.Location, &rating, &c.PriceRange,
		&c.LeadTime, &c.MOQ, pq.Array(&c.Certifications), pq.Array(&c.Specialties),
		&c.ResponseTime, &c.Stock, &c.TimeZone,
		&contact, &c.SourceURL, &attributes)
	if err != nil {
		return discovery.Candidate{}, fmt.Errorf("scan supplier: %w", err)
	}
	if rating.Valid {
		v := rating.Float64
		c.Rating = &v
	}
	if len(contact) > 0 {
		_ = json.Unmarshal(contact, &c.Contact)
	}
	if len(attributes) > 0 {
		var extra map[string]any
		if err := json.Unmarshal(attributes, &extra); err == nil && len(extra) > 0 {
			c.Extra = extra
		}
	}
	c.Provenance = discovery.ProvenanceStore
	return c, nil
}

// Columns lifted out of Candidate.Extra on save.
var extraColumns = []string{"material", "esg_score"}

// SaveCandidates upserts suppliers keyed by their normalized name and
// returns how many rows were written.
func (s *Store) SaveCandidates(ctx context.Context, cands []discovery.Candidate) (int, error) {
	const q = `
INSERT INTO suppliers (id, name_key, company_name, material, location, rating, price_range, price_min, price_max,
                       lead_time, delivery_time_days, moq, certifications, specialties, response_time, stock,
                       time_zone, esg_score, contact, source_url, provenance, attributes, search_text, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,NOW())
ON CONFLICT (name_key) DO UPDATE SET
  company_name=EXCLUDED.company_name,
  material=COALESCE(EXCLUDED.material, suppliers.material),
  location=COALESCE(EXCLUDED.location, suppliers.location),
  rating=COALESCE(EXCLUDED.rating, suppliers.rating),
  price_range=COALESCE(EXCLUDED.price_range, suppliers.price_range),
  price_min=COALESCE(EXCLUDED.price_min, suppliers.price_min),
  price_max=COALESCE(EXCLUDED.price_max, suppliers.price_max),
  lead_time=COALESCE(EXCLUDED.lead_time, suppliers.lead_time),
  delivery_time_days=COALESCE(EXCLUDED.delivery_time_days, suppliers.delivery_time_days),
  moq=COALESCE(EXCLUDED.moq, suppliers.moq),
  certifications=EXCLUDED.certifications,
  specialties=EXCLUDED.specialties,
  response_time=COALESCE(EXCLUDED.response_time, suppliers.response_time),
  stock=COALESCE(EXCLUDED.stock, suppliers.stock),
  time_zone=COALESCE(EXCLUDED.time_zone, suppliers.time_zone),
  esg_score=COALESCE(EXCLUDED.esg_score, suppliers.esg_score),
  contact=EXCLUDED.contact,
  source_url=COALESCE(EXCLUDED.source_url, suppliers.source_url),
  attributes=suppliers.attributes || EXCLUDED.attributes,
  search_text=EXCLUDED.search_text,
  updated_at=NOW()
`
	written := 0
	for _, c := range cands {
		key := NameKey(c.Name)
		if key == "" {
			continue
		}
		extra := map[string]any{}
		cols := map[string]string{}
		for k, v := range c.Extra {
			extra[k] = v
		}
		for _, k := range extraColumns {
			if v, ok := extra[k]; ok {
				cols[k] = utils.Str(v)
				delete(extra, k)
			}
		}
		attrs, err := json.Marshal(extra)
		if err != nil {
			return written, fmt.Errorf("encode attributes: %w", err)
		}
		contact, err := json.Marshal(c.Contact)
		if err != nil {
			return written, fmt.Errorf("encode contact: %w", err)
		}
		var priceMin, priceMax, leadDays any
		if c.Price != nil {
			priceMin, priceMax = c.Price.Min, c.Price.Max
		}
		if c.LeadTimeDays != nil {
			leadDays = c.LeadTimeDays.Max
		}
		var rating any
		if c.Rating != nil {
			rating = *c.Rating
		}
		prov := string(c.Provenance)
		if prov == "" {
			prov = string(discovery.ProvenanceWeb)
		}
		_, err = s.DB.ExecContext(ctx, q,
			uuid.NewString(), key, strings.TrimSpace(c.Name), nullable(cols["material"]), nullable(c.Location), rating,
			nullable(c.PriceRange), priceMin, priceMax,
			nullable(c.LeadTime), leadDays, nullable(c.MOQ),
			pq.Array(nonNil(c.Certifications)), pq.Array(nonNil(c.Specialties)),
			nullable(c.ResponseTime), nullable(c.Stock), nullable(c.TimeZone), nullable(cols["esg_score"]),
			contact, nullable(c.SourceURL), prov, attrs, searchText(c, cols["material"]))
		if err != nil {
			return written, fmt.Errorf("save supplier %q: %w", c.Name, err)
		}
		written++
	}
	return written, nil
}

// NameKey is the identity used to deduplicate suppliers.
func NameKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func searchText(c discovery.Candidate, material string) string {
	parts := []string{c.Name, material, c.Location}
	parts = append(parts, c.Specialties...)
	parts = append(parts, c.Certifications...)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
