package queryspec

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed query.cue
var querySchema string

// Validation error codes.
const (
	ErrInvalidJSON  = "E101" // document is not valid JSON
	ErrInvalidQuery = "E102" // document envelope or meta block is malformed
	ErrInvalidEntry = "E103" // structure/merge entry is malformed
)

// ValidationError describes one problem found in a query document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validator checks raw query documents against the CUE shape in query.cue.
// A Validator is not safe for concurrent use.
type Validator struct {
	ctx   *cue.Context
	query cue.Value
	entry cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(querySchema, cue.Filename("query.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile query schema: %w", err)
	}
	return &Validator{
		ctx:   ctx,
		query: schema.LookupPath(cue.ParsePath("#Query")),
		entry: schema.LookupPath(cue.ParsePath("#Entry")),
	}, nil
}

// Validate checks data with a fresh Validator.
func Validate(filename string, data []byte) ([]ValidationError, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return v.Validate(filename, data), nil
}

// Validate checks the document envelope, then every structure and merge
// entry recursively. An empty result means the document is well-formed.
func (v *Validator) Validate(filename string, data []byte) []ValidationError {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return []ValidationError{{Field: "document", Code: ErrInvalidJSON, Message: err.Error()}}
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return []ValidationError{{Field: "document", Code: ErrInvalidQuery, Message: ErrNotObject.Error()}}
	}

	value := v.ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return []ValidationError{{Field: "document", Code: ErrInvalidJSON, Message: err.Error()}}
	}

	errs := v.check(v.query.Unify(value), "", ErrInvalidQuery, filename)
	v.entries(m["structure"], "structure", &errs)
	v.entries(m["merge"], "merge", &errs)
	return errs
}

func (v *Validator) entries(val any, field string, errs *[]ValidationError) {
	switch e := val.(type) {
	case nil:
	case []any:
		for i, elem := range e {
			v.entryAt(elem, fmt.Sprintf("%s[%d]", field, i), errs)
		}
	default:
		v.entryAt(e, field, errs)
	}
}

func (v *Validator) entryAt(val any, field string, errs *[]ValidationError) {
	m, ok := val.(map[string]any)
	if !ok {
		*errs = append(*errs, ValidationError{Field: field, Code: ErrInvalidEntry, Message: "entry must be an object"})
		return
	}

	data, err := json.Marshal(m)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: field, Code: ErrInvalidEntry, Message: err.Error()})
		return
	}
	value := v.ctx.CompileBytes(data)
	*errs = append(*errs, v.check(v.entry.Unify(value), field, ErrInvalidEntry, "")...)

	_, hasPath := m["path"]
	_, hasMerge := m["merge"]
	if hasPath == hasMerge {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Code:    ErrInvalidEntry,
			Message: "entry must have exactly one of path or merge",
		})
	}

	v.entries(m["structure"], field+".structure", errs)
	v.entries(m["merge"], field+".merge", errs)
}

// check converts CUE validation errors, keeping line numbers only when
// they point into the named document.
func (v *Validator) check(value cue.Value, field, code, filename string) []ValidationError {
	err := value.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		ve := ValidationError{
			Field:   joinField(field, e.Path()),
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		}
		if filename != "" {
			for _, pos := range cueerrors.Positions(e) {
				if pos.Filename() == filename {
					ve.Line = pos.Line()
					break
				}
			}
		}
		out = append(out, ve)
	}
	return out
}

func joinField(field string, path []string) string {
	if len(path) == 0 {
		if field == "" {
			return "document"
		}
		return field
	}
	if field == "" {
		return strings.Join(path, ".")
	}
	return field + "." + strings.Join(path, ".")
}
