// Package jsonld normalizes saved query documents: a document is expanded
// and compacted again against a known context, so documents written with
// any prefixes come back with the keys the builder reads.
package jsonld

import (
	"encoding/json"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// Processor expands and compacts documents.
type Processor struct {
	proc *ld.JsonLdProcessor
}

// New returns a Processor.
func New() *Processor {
	return &Processor{proc: ld.NewJsonLdProcessor()}
}

// Normalize expands doc and compacts the result with context.
func (p *Processor) Normalize(doc, context map[string]any) (map[string]any, error) {
	opts := ld.NewJsonLdOptions("")
	expanded, err := p.proc.Expand(plain(doc), opts)
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}
	compacted, err := p.proc.Compact(expanded, plain(context), opts)
	if err != nil {
		return nil, fmt.Errorf("compact: %w", err)
	}
	return compacted, nil
}

// plain converts json.Number values, which the processor does not
// recognise as numbers, to int64 or float64.
func plain(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = plain(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = plain(elem)
		}
		return out
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}
