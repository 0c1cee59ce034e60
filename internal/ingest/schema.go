package ingest

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// Schema definitions checked by this package.
const (
	defSteps = "#Steps"
	defAux   = "#Aux"
)

// SchemaError reports a payload that does not match the expected shape.
type SchemaError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	loc := ""
	if e.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.Path != "" {
		return fmt.Sprintf("%sschema: %s: %s", loc, e.Path, e.Message)
	}
	return fmt.Sprintf("%sschema: %s", loc, e.Message)
}

// schema holds the compiled CUE schema. A cue.Context is not safe for
// concurrent use, so every check serializes on mu.
type schema struct {
	mu    sync.Mutex
	ctx   *cue.Context
	value cue.Value
}

var (
	schemaOnce     sync.Once
	compiledSchema *schema
	schemaErr      error
)

func loadSchema() (*schema, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile embedded schema: %w", err)
			return
		}
		compiledSchema = &schema{ctx: ctx, value: v}
	})
	return compiledSchema, schemaErr
}

// checkShape unifies payload with the named definition and validates that
// the result is concrete.
func checkShape(def string, filename string, payload []byte) error {
	s, err := loadSchema()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.ctx.CompileBytes(payload, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return formatCUEError(err)
	}

	unified := s.value.LookupPath(cue.ParsePath(def)).Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError converts the first CUE error into a SchemaError carrying
// its path and position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}

	first := errs[0]
	se := &SchemaError{
		Path:    strings.Join(errors.Path(first), "."),
		Message: first.Error(),
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		se.Pos = positions[0]
	}
	return se
}
