package server

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
)

// CandidateWriter persists supplier records.
type CandidateWriter interface {
	SaveCandidates(ctx context.Context, cands []discovery.Candidate) (int, error)
}

func rating(v float64) *float64 { return &v }

// SampleSuppliers is a small catalogue used to seed a fresh database.
func SampleSuppliers() []discovery.Candidate {
	return []discovery.Candidate{
		{
			Name:           "Asia Metals Ltd",
			Provenance:     discovery.ProvenanceStore,
			Location:       "Asia",
			Rating:         rating(4.5),
			PriceRange:     "$140-160",
			LeadTime:       "10 days",
			MOQ:            "500 kg",
			Certifications: []string{"ISO 9001", "RoHS"},
			Specialties:    []string{"copper", "copper cathodes"},
			ResponseTime:   "24h",
			Stock:          "in stock",
			TimeZone:       "UTC+8",
			Contact:        discovery.Contact{Website: "https://asiametals.example", Email: "sales@asiametals.example"},
			Extra:          map[string]any{"material": "copper", "region": "asia", "esg_score": "high"},
		},
		{
			Name:           "Green Copper Co",
			Provenance:     discovery.ProvenanceStore,
			Location:       "Vietnam",
			Rating:         rating(4.2),
			PriceRange:     "$150-170",
			LeadTime:       "12 days",
			MOQ:            "1000 kg",
			Certifications: []string{"ISO 9001", "ISO 14001"},
			Specialties:    []string{"copper", "recycled copper"},
			ResponseTime:   "1-2 days",
			Stock:          "in stock",
			TimeZone:       "UTC+7",
			Contact:        discovery.Contact{Website: "https://greencopper.example", Phone: "+84 28 0000 0000"},
			Extra:          map[string]any{"material": "copper", "region": "asia", "esg_score": "high"},
		},
		{
			Name:           "Lanka Zinc Industries",
			Provenance:     discovery.ProvenanceStore,
			Location:       "Sri Lanka",
			Rating:         rating(3.9),
			PriceRange:     "USD 2,600-2,900 per ton",
			LeadTime:       "3 weeks",
			MOQ:            "5 tons",
			Certifications: []string{"ISO 9001"},
			Specialties:    []string{"zinc", "zinc ingots"},
			ResponseTime:   "2-4 hours",
			Stock:          "limited",
			TimeZone:       "UTC+5:30",
			Contact:        discovery.Contact{Email: "export@lankazinc.example"},
			Extra:          map[string]any{"material": "zinc", "region": "sri lanka", "esg_score": "medium"},
		},
	}
}

// Seed normalizes SampleSuppliers and writes them through w.
func Seed(ctx context.Context, w CandidateWriter, normalizer discovery.Normalizer) (int, error) {
	cands, dropped := normalizer.NormalizeAll(SampleSuppliers())
	if len(dropped) > 0 {
		return 0, fmt.Errorf("seed suppliers: %w", dropped[0])
	}
	n, err := w.SaveCandidates(ctx, cands)
	if err != nil {
		return 0, fmt.Errorf("seed suppliers: %w", err)
	}
	return n, nil
}
