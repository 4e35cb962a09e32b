package store

import (
	"context"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
)

func TestQuerySuppliers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := NewWithDB(db, nil)

	query := regexp.QuoteMeta(`SELECT ` + supplierColumns + `
FROM suppliers
WHERE (material ILIKE $1 OR EXISTS (SELECT 1 FROM unnest(specialties) sp WHERE sp ILIKE $1))
  AND delivery_time_days <= $2
ORDER BY rating DESC NULLS LAST, company_name
LIMIT $3`)
	mock.ExpectQuery(query).
		WithArgs("zinc", 15.0, defaultSupplierLimit).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "company_name", "location", "rating", "price_range",
			"lead_time", "moq", "certifications", "specialties",
			"response_time", "stock", "time_zone",
			"contact", "source_url", "attributes",
		}).AddRow(
			"sup-1", "Lanka Zinc", "Colombo, Sri Lanka", 4.5, "$2500-2800",
			"7-10 days", "5 tons", []byte(`{"ISO 9001",RoHS}`), []byte(`{ingots}`),
			"24 hours", "in stock", "Asia/Colombo",
			[]byte(`{"email":"sales@lankazinc.example"}`), "", []byte(`{"grade":"SHG"}`),
		).AddRow(
			"sup-2", "Ceylon Metals", "", nil, "",
			"", "", []byte(`{}`), []byte(`{}`),
			"", "", "",
			[]byte(`{}`), "", []byte(`{}`),
		))

	got, err := st.Query(context.Background(), discovery.Filter{
		Equals: map[string]any{"material": "zinc"},
		AtMost: map[string]float64{"delivery_time_days": 15},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suppliers, got %d", len(got))
	}
	c := got[0]
	if c.Name != "Lanka Zinc" || c.Rating == nil || *c.Rating != 4.5 || c.Provenance != discovery.ProvenanceStore {
		t.Fatalf("unexpected supplier: %#v", c)
	}
	if len(c.Certifications) != 2 || c.Certifications[0] != "ISO 9001" {
		t.Fatalf("unexpected certifications: %v", c.Certifications)
	}
	if c.Contact.Email != "sales@lankazinc.example" || c.Extra["grade"] != "SHG" {
		t.Fatalf("unexpected contact/extra: %#v %#v", c.Contact, c.Extra)
	}
	if got[1].Rating != nil || got[1].Extra != nil {
		t.Fatalf("expected empty optional fields: %#v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBuildSupplierQuery(t *testing.T) {
	q, args := buildSupplierQuery(discovery.Filter{
		Equals:  map[string]any{"region": "asia", "esg_score": "high", "grade": "A"},
		In:      map[string][]string{"certifications": {"ISO 9001"}, "markets": {"EU"}},
		AtMost:  map[string]float64{"price": 200, "purity": 99.9},
		AtLeast: map[string]float64{"rating": 4},
		Text:    "copper cathodes",
		Limit:   5,
	})
	wantClauses := []string{
		"lower(esg_score) = lower($1)",
		"lower(attributes->>$2::text) = lower($3)",
		"location ILIKE '%' || $4::text || '%'",
		"$5::text[] <@ certifications",
		"attributes->$6::text ?& $7::text[]",
		"price_min <= $8",
		"THEN (attributes->>$9::text)::double precision <= $10 ELSE false END",
		"rating >= $11",
		"search_tsv @@ plainto_tsquery('english', $12)",
		"LIMIT $13",
	}
	for _, c := range wantClauses {
		if !strings.Contains(q, c) {
			t.Fatalf("query missing %q:\n%s", c, q)
		}
	}
	if len(args) != 13 || args[12] != 5 {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildSupplierQueryEmptyFilter(t *testing.T) {
	q, args := buildSupplierQuery(discovery.Filter{})
	if strings.Contains(q, "WHERE") {
		t.Fatalf("empty filter should not add a WHERE clause:\n%s", q)
	}
	if len(args) != 1 || args[0] != defaultSupplierLimit {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestSaveCandidates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := NewWithDB(db, nil)

	rating := 4.5
	cands := []discovery.Candidate{
		{
			Name:           "Asia Metals Ltd",
			Provenance:     discovery.ProvenanceStore,
			Location:       "Asia",
			Rating:         &rating,
			PriceRange:     "USD 140-160",
			Price:          &discovery.Range{Min: 140, Max: 160},
			LeadTime:       "10 days",
			LeadTimeDays:   &discovery.Range{Min: 10, Max: 10},
			MOQ:            "500",
			Certifications: []string{"ISO 9001"},
			Contact:        discovery.Contact{Website: "https://asiametals.example"},
			Extra:          map[string]any{"material": "copper", "esg_score": "high", "grade": "A"},
		},
		{Name: "   "},
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO suppliers (id, name_key, company_name`)).
		WithArgs(
			sqlmock.AnyArg(), "asia metals ltd", "Asia Metals Ltd", "copper", "Asia", 4.5,
			"USD 140-160", 140.0, 160.0,
			"10 days", 10.0, "500",
			pq.Array([]string{"ISO 9001"}), pq.Array([]string{}),
			nil, nil, nil, "high",
			[]byte(`{"website":"https://asiametals.example"}`), nil, "store", []byte(`{"grade":"A"}`),
			"Asia Metals Ltd copper Asia ISO 9001",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := st.SaveCandidates(context.Background(), cands)
	if err != nil {
		t.Fatalf("SaveCandidates: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row written, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNameKey(t *testing.T) {
	if got := NameKey("  Asia   Metals LTD "); got != "asia metals ltd" {
		t.Fatalf("got %q", got)
	}
}
