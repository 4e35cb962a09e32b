package toolagent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// argSchemas holds the compiled input schema of every catalogued tool.
type argSchemas struct {
	once    sync.Once
	schemas map[string]*jsonschema.Schema
	err     error
}

func (s *argSchemas) compile(tools []Tool) (map[string]*jsonschema.Schema, error) {
	s.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		out := make(map[string]*jsonschema.Schema, len(tools))
		for _, t := range tools {
			raw, err := json.Marshal(t.InputSchema)
			if err != nil {
				s.err = fmt.Errorf("encode %s schema: %w", t.Name, err)
				return
			}
			name := t.Name + ".json"
			if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
				s.err = fmt.Errorf("add %s schema resource: %w", t.Name, err)
				return
			}
			schema, err := compiler.Compile(name)
			if err != nil {
				s.err = fmt.Errorf("compile %s schema: %w", t.Name, err)
				return
			}
			out[t.Name] = schema
		}
		s.schemas = out
	})
	return s.schemas, s.err
}

// validateArgs checks args against the tool's input schema. Tools without a
// schema are left to Call to reject.
func (tb *Toolbox) validateArgs(tool string, args map[string]any) error {
	schemas, err := tb.schemas.compile(tb.Catalogue())
	if err != nil {
		return err
	}
	schema, ok := schemas[tool]
	if !ok {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	// round-trip so the validator only sees plain JSON values
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s does not match its input schema: %v", ErrInvalidArgs, tool, err)
	}
	return nil
}
