package ai

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names double as the response_format names sent to the model.
const (
	SchemaProfile      = "profile_extraction"
	SchemaEligibility  = "eligibility_assessment"
	SchemaConversation = "conversation_response"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type compiledSchema struct {
	raw    []byte
	schema *gojsonschema.Schema
}

var schemas = mustCompileSchemas(SchemaProfile, SchemaEligibility, SchemaConversation)

func mustCompileSchemas(names ...string) map[string]compiledSchema {
	out := make(map[string]compiledSchema, len(names))
	for _, n := range names {
		raw, err := schemaFS.ReadFile("schemas/" + n + ".json")
		if err != nil {
			panic(fmt.Sprintf("ai: schema %s: %v", n, err))
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("ai: schema %s: %v", n, err))
		}
		out[n] = compiledSchema{raw: raw, schema: s}
	}
	return out
}

// SchemaError lists the violations of a document against a schema.
type SchemaError struct {
	Schema string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s schema validation failed: %s", e.Schema, strings.Join(e.Issues, "; "))
}

// validate checks doc (raw JSON) against the named schema.
func validate(name string, doc []byte) error {
	s, ok := schemas[name]
	if !ok {
		return fmt.Errorf("ai: unknown schema %q", name)
	}
	res, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	se := &SchemaError{Schema: name}
	for _, e := range res.Errors() {
		se.Issues = append(se.Issues, e.String())
	}
	return se
}

// ValidateProfile checks a profile document supplied by a client (publish,
// save-parsed) against the extraction schema.
func ValidateProfile(doc []byte) error { return validate(SchemaProfile, doc) }
