package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

var compileSchemas = sync.OnceValues(func() (cue.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile config schemas: %w", err)
	}
	return v, nil
})

// validateJSON checks a raw JSON document against one of the embedded
// schema definitions (#Project, #Releases, #Feature, #Task) before it is
// decoded. Schema violations come back with CUE's field positions, which
// beat the zero-value surprises of a plain json.Unmarshal.
func validateJSON(path, definition string, data []byte) error {
	schemas, err := compileSchemas()
	if err != nil {
		return err
	}
	def := schemas.LookupPath(cue.ParsePath(definition))
	if err := def.Err(); err != nil {
		return fmt.Errorf("schema %s: %w", definition, err)
	}
	if err := cuejson.Validate(data, def); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}
