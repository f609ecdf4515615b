package config

import (
	_ "embed"
	"fmt"
	"strings"

	dserrors "github.com/systmms/dbops/internal/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

// validateSchema checks a decoded dbops.yaml document against the embedded JSON schema
func validateSchema(doc map[string]interface{}) error {
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return dserrors.ConfigError{
			Message:    fmt.Sprintf("schema validation failed:\n  - %s", strings.Join(errorMessages, "\n  - ")),
			Suggestion: "Fix the fields listed above in dbops.yaml",
		}
	}

	return nil
}
