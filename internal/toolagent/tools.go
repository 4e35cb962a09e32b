package toolagent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/utils"
)

const (
	ToolQueryStore = "query_store"
	ToolWebSearch  = "web_search"
	ToolWebExtract = "web_extract"
	ToolValidate   = "validate_supplier_data"
	ToolFinalize   = "finalize_supplier_search"
)

var (
	ErrUnnormalizable  = errors.New("none of the suppliers could be normalized")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrInvalidArgs     = errors.New("invalid tool arguments")
	errToolUnavailable = errors.New("tool unavailable")
)

// Tool describes one action the planner may take.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolboxOptions bounds what a single tool call may return.
type ToolboxOptions struct {
	TopN           int
	MaxExtractURLs int
	StoreLimit     int
	ContentChars   int
}

// Toolbox runs planner actions against the same store and web research the
// deterministic workflow uses.
type Toolbox struct {
	store      discovery.CandidateStore
	web        discovery.WebResearch
	normalizer discovery.Normalizer
	opts       ToolboxOptions
	schemas    argSchemas
}

// CallResult is what a tool hands back to the agent loop. Final is set only
// by a successful finalize.
type CallResult struct {
	Result  any
	Warning string
	Final   []discovery.Candidate
}

// NewToolbox builds the tools. Finalized suppliers go through normalizer,
// the same one the deterministic workflow uses.
func NewToolbox(store discovery.CandidateStore, web discovery.WebResearch, normalizer discovery.Normalizer, opts ToolboxOptions) *Toolbox {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.MaxExtractURLs <= 0 {
		opts.MaxExtractURLs = 15
	}
	if opts.StoreLimit <= 0 {
		opts.StoreLimit = 20
	}
	if opts.ContentChars <= 0 {
		opts.ContentChars = 3000
	}
	return &Toolbox{store: store, web: web, normalizer: normalizer, opts: opts}
}

// Catalogue lists the tools in the order they are offered to the planner.
func (tb *Toolbox) Catalogue() []Tool {
	return []Tool{
		{
			Name:        ToolQueryStore,
			Description: "Query the internal supplier database. Pass structured requirements (material, location, certifications, delivery_time_days as {\"$lte\": n}) and/or free text.",
			InputSchema: objectSchema(map[string]any{
				"requirements": map[string]any{"type": "object"},
				"query":        map[string]any{"type": "string"},
				"preference":   map[string]any{"type": "string"},
			}),
		},
		{
			Name:        ToolWebSearch,
			Description: "Search the web for supplier leads. Returns titles, URLs and summaries.",
			InputSchema: objectSchema(map[string]any{"query": map[string]any{"type": "string"}}, "query"),
		},
		{
			Name:        ToolWebExtract,
			Description: fmt.Sprintf("Extract page content and contact fields from up to %d URLs.", tb.opts.MaxExtractURLs),
			InputSchema: objectSchema(map[string]any{"urls": map[string]any{"type": []string{"array", "string"}}}, "urls"),
		},
		{
			Name:        ToolValidate,
			Description: "Check a supplier record for missing required fields and get a completeness score.",
			InputSchema: objectSchema(map[string]any{"supplier_data": map[string]any{"type": "object"}}, "supplier_data"),
		},
		{
			Name:        ToolFinalize,
			Description: fmt.Sprintf("Finish the search with the best suppliers found, at most %d. Each supplier needs company_name and as many of %s as known.", tb.opts.TopN, strings.Join(RequiredSupplierFields[1:], ", ")),
			InputSchema: objectSchema(map[string]any{"suppliers": map[string]any{"type": "array"}}, "suppliers"),
		},
	}
}

// Call executes one action.
func (tb *Toolbox) Call(ctx context.Context, a Action) (CallResult, error) {
	if err := tb.validateArgs(a.Tool, a.Args); err != nil {
		return CallResult{}, err
	}
	switch a.Tool {
	case ToolQueryStore:
		return tb.queryStore(ctx, a.Args)
	case ToolWebSearch:
		return tb.webSearch(ctx, a.Args)
	case ToolWebExtract:
		return tb.webExtract(ctx, a.Args)
	case ToolValidate:
		record, ok := a.Args["supplier_data"].(map[string]any)
		if !ok {
			return CallResult{}, fmt.Errorf("%w: supplier_data must be an object", ErrInvalidArgs)
		}
		return CallResult{Result: ValidateSupplierData(record)}, nil
	case ToolFinalize:
		return tb.finalize(a.Args)
	default:
		return CallResult{}, fmt.Errorf("%w: %q", ErrUnknownTool, a.Tool)
	}
}

func (tb *Toolbox) queryStore(ctx context.Context, args map[string]any) (CallResult, error) {
	if tb.store == nil {
		return CallResult{}, fmt.Errorf("%s: %w", ToolQueryStore, errToolUnavailable)
	}
	var f discovery.Filter
	if raw, ok := args["requirements"].(map[string]any); ok && len(raw) > 0 {
		reqs, err := discovery.ParseRequirements(raw)
		if err != nil {
			return CallResult{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
		f = discovery.BuildFilter(reqs, argString(args, "preference"))
	}
	f.Text = argString(args, "query")
	if f.Empty() {
		return CallResult{}, fmt.Errorf("%w: requirements or query is required", ErrInvalidArgs)
	}
	f.Limit = tb.opts.StoreLimit
	cands, err := tb.store.Query(ctx, f)
	if err != nil {
		return CallResult{}, fmt.Errorf("query store: %w", err)
	}
	return CallResult{Result: map[string]any{"suppliers": nonNilCandidates(cands), "count": len(cands)}}, nil
}

func (tb *Toolbox) webSearch(ctx context.Context, args map[string]any) (CallResult, error) {
	if tb.web == nil {
		return CallResult{}, fmt.Errorf("%s: %w", ToolWebSearch, errToolUnavailable)
	}
	q := argString(args, "query")
	if q == "" {
		return CallResult{}, fmt.Errorf("%w: query is required", ErrInvalidArgs)
	}
	leads, err := tb.web.Search(ctx, q)
	if err != nil {
		return CallResult{}, fmt.Errorf("web search: %w", err)
	}
	if leads == nil {
		leads = []discovery.Lead{}
	}
	return CallResult{Result: map[string]any{"results": leads}}, nil
}

func (tb *Toolbox) webExtract(ctx context.Context, args map[string]any) (CallResult, error) {
	if tb.web == nil {
		return CallResult{}, fmt.Errorf("%s: %w", ToolWebExtract, errToolUnavailable)
	}
	urls := argStrings(args, "urls")
	if len(urls) == 0 {
		return CallResult{}, fmt.Errorf("%w: urls must be a non-empty list", ErrInvalidArgs)
	}
	var warning string
	if len(urls) > tb.opts.MaxExtractURLs {
		warning = fmt.Sprintf("%d urls requested, only the first %d were extracted", len(urls), tb.opts.MaxExtractURLs)
		urls = urls[:tb.opts.MaxExtractURLs]
	}
	frags, err := tb.web.Extract(ctx, urls)
	if err != nil {
		return CallResult{Warning: warning}, fmt.Errorf("web extract: %w", err)
	}
	for i := range frags {
		frags[i].Content = utils.Truncate(frags[i].Content, tb.opts.ContentChars)
	}
	if frags == nil {
		frags = []discovery.Fragment{}
	}
	return CallResult{Result: map[string]any{"results": frags}, Warning: warning}, nil
}

func (tb *Toolbox) finalize(args map[string]any) (CallResult, error) {
	raw, _ := args["suppliers"].([]any)
	cands := make([]discovery.Candidate, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := discovery.CandidateFromMap(m, discovery.ProvenanceWeb)
		if c.Name == "" {
			continue
		}
		cands = append(cands, c)
	}
	valid, dropped := tb.normalizer.NormalizeAll(cands)
	if len(cands) > 0 && len(valid) == 0 {
		return CallResult{}, fmt.Errorf("%w: %w", discovery.ErrNoSuppliers, ErrUnnormalizable)
	}
	final, warning, err := Finalize(valid, tb.opts.TopN)
	if err != nil {
		return CallResult{}, err
	}
	if len(dropped) > 0 {
		notes := make([]string, len(dropped))
		for i, d := range dropped {
			notes[i] = d.Error()
		}
		note := fmt.Sprintf("%d suppliers dropped: %s", len(dropped), strings.Join(notes, "; "))
		if warning == "" {
			warning = note
		} else {
			warning += "; " + note
		}
	}
	return CallResult{
		Result:  map[string]any{"accepted": len(final)},
		Warning: warning,
		Final:   final,
	}, nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func argStrings(args map[string]any, key string) []string {
	switch t := args[key].(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) != "" {
			return []string{strings.TrimSpace(t)}
		}
	}
	return nil
}

func nonNilCandidates(c []discovery.Candidate) []discovery.Candidate {
	if c == nil {
		return []discovery.Candidate{}
	}
	return c
}
