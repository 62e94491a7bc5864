package httpapi

import (
	"bytes"
	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed update.schema.json
var updateSchemaJSON []byte

const updateSchemaURL = "https://fleetdesk.internal/schemas/update.schema.json"

var updateSchema = mustCompileSchema(updateSchemaURL, updateSchemaJSON)

func mustCompileSchema(url string, raw []byte) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		panic("httpapi: parse schema: " + err.Error())
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		panic("httpapi: add schema: " + err.Error())
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic("httpapi: compile schema: " + err.Error())
	}
	return schema
}

// validateUpdate checks the webhook payload shape before it is decoded into
// intake.Update.
func validateUpdate(body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return err
	}
	return updateSchema.Validate(inst)
}
